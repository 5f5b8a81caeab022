package internal

// Version is reported by -version and in the server banner.
const Version = "0.3.0"
