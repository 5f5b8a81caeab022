package internal

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ghostcanvas/internal/storage"
)

var (
	errMethodNotAllowed = errors.New("method not allowed")
	errTooManyRequests  = errors.New("too many requests, try again later")
	errNoFile           = errors.New("no file uploaded")
	errUploadTooLarge   = errors.New("file too large")
	errAssetsDisabled   = errors.New("material uploads are disabled")
)

type rosterEntry struct {
	UserID   string    `json:"userId"`
	Nickname string    `json:"nickname"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

type uploadResponse struct {
	Success      bool   `json:"success"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
}

type materialsResponse struct {
	Success   bool            `json:"success"`
	Materials []MaterialEntry `json:"materials"`
}

type backgroundResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
}

type backgroundsResponse struct {
	Success     bool     `json:"success"`
	Backgrounds []string `json:"backgrounds"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType,omitempty"`
}

// HandleUsers returns the joined users ordered by join time.
func (s *Server) HandleUsers(w http.ResponseWriter, r *http.Request) {
	roster := s.hub.Registry().Roster()
	entries := make([]rosterEntry, 0, len(roster))
	for _, user := range roster {
		entries = append(entries, rosterEntry{
			UserID:   user.ID,
			Nickname: user.Nickname,
			Color:    user.Color,
			JoinedAt: user.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) HandleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeError(w, http.StatusServiceUnavailable, errAssetsDisabled)
		return
	}
	if !s.uploadLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, errTooManyRequests)
		return
	}
	// multipart framing needs a little room on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartFormMemory)
	if err := r.ParseMultipartForm(multipartFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errUploadTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("material")
	if err != nil {
		writeError(w, http.StatusBadRequest, errNoFile)
		return
	}
	defer file.Close()
	if header.Size > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, errUploadTooLarge)
		return
	}

	material, err := s.assets.Save(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, ErrNotPNG) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Printf("upload material: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncUpload()
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:      true,
		Filename:     material.Filename,
		OriginalName: header.Filename,
		URL:          MaterialURL(material.Filename),
		Size:         material.SizeBytes,
	})
}

func (s *Server) HandleMaterials(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeJSON(w, http.StatusOK, materialsResponse{Success: true, Materials: []MaterialEntry{}})
		return
	}
	entries, err := s.assets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, materialsResponse{Success: true, Materials: entries})
}

// HandleDeleteMaterial removes a material from the library. Canvases that
// already placed it keep their URL until the file is gone.
func (s *Server) HandleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeError(w, http.StatusServiceUnavailable, errAssetsDisabled)
		return
	}
	if err := s.assets.Delete(r.Context(), mux.Vars(r)["filename"]); err != nil {
		if errors.Is(err, storage.ErrMaterialNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleServeMaterial(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.NotFound(w, r)
		return
	}
	filename := mux.Vars(r)["filename"]
	file, material, err := s.assets.Open(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrMaterialNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer file.Close()
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", http.MethodGet)
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, material.Filename, material.CreatedAt, file)
}

func (s *Server) HandleGenerateBackground(w http.ResponseWriter, r *http.Request) {
	if !s.generateLimiter.Allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:     errTooManyRequests.Error(),
			ErrorType: BackgroundRateLimited,
		})
		return
	}
	provider := s.backgrounds
	if provider == nil {
		provider = (*ReplicateProvider)(nil)
	}
	imageURL, err := provider.Generate(r.Context())
	if err != nil {
		bgErr := classifyBackgroundError(err)
		log.Printf("generate background: %v", err)
		writeJSON(w, bgErr.Status, errorResponse{Error: bgErr.Message, ErrorType: bgErr.Kind})
		return
	}
	writeJSON(w, http.StatusOK, backgroundResponse{Success: true, ImageURL: imageURL})
}

// HandleBackgrounds lists cached backgrounds. Generated images are not cached,
// so the list is always empty.
func (s *Server) HandleBackgrounds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, backgroundsResponse{Success: true, Backgrounds: []string{}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
