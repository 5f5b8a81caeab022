package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const maxNotices = 6

// TUIModel is the terminal client: one canvas, the ghosts of everyone else and a
// command line.
type TUIModel struct {
	textInput textinput.Model
	sync      *Synchronizer
	api       *assetClient
	canvas    *Canvas
	ghosts    *Reconciler
	renderer  *TextRenderer
	retry     *backoff.ExponentialBackOff

	serverJoinURL string
	nickname      string
	color         string
	isConnected   bool
	connecting    bool
	lastError     error
	notices       []string
	quitting      bool
}

func NewTUIModel(serverJoinURL, nickname, color string) (*TUIModel, error) {
	api, err := newAssetClient(serverJoinURL)
	if err != nil {
		return nil, err
	}
	input := textinput.New()
	input.Placeholder = "/add /uploads/tree.png 400 300"
	input.CharLimit = 0
	input.Prompt = "> "
	input.Focus()

	if nickname == "" {
		nickname = defaultNickname()
	}

	synchronizer := NewSynchronizer(serverJoinURL)
	canvas := NewCanvas(synchronizer, nil)
	ghosts := NewReconciler(nil)
	renderer := NewTextRenderer(canvas, ghosts)
	canvas.SetRenderer(renderer)
	ghosts.SetRenderer(renderer)

	return &TUIModel{
		textInput:     input,
		sync:          synchronizer,
		api:           api,
		canvas:        canvas,
		ghosts:        ghosts,
		renderer:      renderer,
		retry:         newReconnectPolicy(),
		serverJoinURL: serverJoinURL,
		nickname:      nickname,
		color:         color,
		connecting:    true,
	}, nil
}

func defaultNickname() string {
	if nick := os.Getenv("GHOSTCANVAS_NICK"); nick != "" {
		return nick
	}
	return os.Getenv("USER")
}

func (model *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.connectCmd(), model.waitEventCmd())
}

func (model *TUIModel) notify(text string) {
	stamp := time.Now().Format("15:04:05")
	model.notices = append(model.notices, fmt.Sprintf("%s %s", stamp, text))
	if len(model.notices) > maxNotices {
		model.notices = model.notices[len(model.notices)-maxNotices:]
	}
}

// RunClient starts the terminal client against a websocket join URL. While the
// UI owns the terminal, log output goes to GHOSTCANVAS_LOG or nowhere.
func RunClient(serverJoinURL, nickname, color string) error {
	model, err := NewTUIModel(serverJoinURL, nickname, color)
	if err != nil {
		return err
	}
	if path := os.Getenv("GHOSTCANVAS_LOG"); path != "" {
		logFile, err := tea.LogToFile(path, "ghostcanvas")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
	} else {
		log.SetOutput(io.Discard)
	}
	defer log.SetOutput(os.Stderr)

	program := tea.NewProgram(model)
	_, err = program.Run()
	_ = model.sync.Close()
	return err
}
