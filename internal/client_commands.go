package internal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	tea "github.com/charmbracelet/bubbletea"
)

type commandKind int

const (
	cmdAdd commandKind = iota + 1
	cmdMove
	cmdResize
	cmdDelete
	cmdClear
	cmdBackground
	cmdGenerate
	cmdMaterials
	cmdUpload
	cmdExport
	cmdDiscard
	cmdAt
	cmdFiles
	cmdPeers
	cmdHelp
	cmdQuit
)

// command is one parsed input line.
type command struct {
	kind    commandKind
	id      string
	arg     string
	x, y    float64
	w, h    float64
	hasSize bool
}

const commandHelp = "/add url x y [w h]  /move id x y  /resize id w h  /delete id  /clear  /bg url  /generate  /materials  /upload file.png  /export file.pdf  /discard file  /at x y  /files [dir]  /peers  /quit"

var errEmptyCommand = errors.New("type a command, /help lists them")

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return command{}, errEmptyCommand
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]
	switch name {
	case "/add":
		if len(args) != 3 && len(args) != 5 {
			return command{}, errors.New("usage: /add url x y [w h]")
		}
		nums, err := parseNumbers(args[1:])
		if err != nil {
			return command{}, err
		}
		cmd := command{kind: cmdAdd, arg: args[0], x: nums[0], y: nums[1]}
		if len(nums) == 4 {
			if nums[2] <= 0 || nums[3] <= 0 {
				return command{}, errors.New("width and height must be positive")
			}
			cmd.w, cmd.h, cmd.hasSize = nums[2], nums[3], true
		}
		return cmd, nil
	case "/move":
		if len(args) != 3 {
			return command{}, errors.New("usage: /move id x y")
		}
		nums, err := parseNumbers(args[1:])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdMove, id: args[0], x: nums[0], y: nums[1]}, nil
	case "/resize":
		if len(args) != 3 {
			return command{}, errors.New("usage: /resize id w h")
		}
		nums, err := parseNumbers(args[1:])
		if err != nil {
			return command{}, err
		}
		if nums[0] <= 0 || nums[1] <= 0 {
			return command{}, errors.New("width and height must be positive")
		}
		return command{kind: cmdResize, id: args[0], w: nums[0], h: nums[1], hasSize: true}, nil
	case "/delete", "/del", "/rm":
		if len(args) != 1 {
			return command{}, errors.New("usage: /delete id")
		}
		return command{kind: cmdDelete, id: args[0]}, nil
	case "/clear":
		return command{kind: cmdClear}, nil
	case "/bg", "/background":
		if len(args) != 1 {
			return command{}, errors.New("usage: /bg url")
		}
		return command{kind: cmdBackground, arg: args[0]}, nil
	case "/generate":
		return command{kind: cmdGenerate}, nil
	case "/materials", "/library":
		return command{kind: cmdMaterials}, nil
	case "/upload":
		if len(args) != 1 {
			return command{}, errors.New("usage: /upload file.png")
		}
		return command{kind: cmdUpload, arg: args[0]}, nil
	case "/export":
		if len(args) != 1 {
			return command{}, errors.New("usage: /export file.pdf")
		}
		return command{kind: cmdExport, arg: args[0]}, nil
	case "/discard":
		if len(args) != 1 {
			return command{}, errors.New("usage: /discard file")
		}
		return command{kind: cmdDiscard, arg: args[0]}, nil
	case "/at":
		if len(args) != 2 {
			return command{}, errors.New("usage: /at x y")
		}
		nums, err := parseNumbers(args)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdAt, x: nums[0], y: nums[1]}, nil
	case "/files", "/ls":
		if len(args) > 1 {
			return command{}, errors.New("usage: /files [dir]")
		}
		cmd := command{kind: cmdFiles}
		if len(args) == 1 {
			cmd.arg = args[0]
		}
		return cmd, nil
	case "/peers", "/who":
		return command{kind: cmdPeers}, nil
	case "/help", "/?":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %s", fields[0])
}

func parseNumbers(args []string) ([]float64, error) {
	nums := make([]float64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		nums = append(nums, v)
	}
	return nums, nil
}

type (
	connectedMsg     struct{ selfID string }
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	serverEventMsg   struct{ event ServerEvent }
	materialsMsg     struct {
		entries []MaterialEntry
		err     error
	}
	uploadedMsg struct {
		resp *uploadResponse
		err  error
	}
	generatedMsg struct {
		url string
		err error
	}
	discardedMsg struct {
		filename string
		err      error
	}
	exportedMsg struct {
		path  string
		count int
		err   error
	}
	sizeProbedMsg struct {
		pending command
		w, h    float64
		err     error
	}
)

func (model *TUIModel) connectCmd() tea.Cmd {
	synchronizer := model.sync
	nickname, color := model.nickname, model.color
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := synchronizer.Connect(ctx, nickname, color); err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{selfID: synchronizer.SelfID()}
	}
}

// waitEventCmd blocks for the next server event. Update re-issues it after
// every event so exactly one reader is outstanding.
func (model *TUIModel) waitEventCmd() tea.Cmd {
	events := model.sync.Events()
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return serverEventMsg{event: event}
	}
}

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	delay := model.retry.NextBackOff()
	if delay == backoff.Stop {
		model.notify("giving up on reconnecting; restart to try again")
		return nil
	}
	model.notify(fmt.Sprintf("reconnecting in %s", delay.Round(100*time.Millisecond)))
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) listMaterialsCmd() tea.Cmd {
	api := model.api
	return func() tea.Msg {
		entries, err := api.listMaterials()
		return materialsMsg{entries: entries, err: err}
	}
}

func (model *TUIModel) uploadCmd(path string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		resp, err := api.uploadMaterial(path)
		return uploadedMsg{resp: resp, err: err}
	}
}

func (model *TUIModel) generateCmd() tea.Cmd {
	api := model.api
	return func() tea.Msg {
		url, err := api.generateBackground()
		return generatedMsg{url: url, err: err}
	}
}

func (model *TUIModel) discardCmd(filename string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		return discardedMsg{filename: filename, err: api.deleteMaterial(filename)}
	}
}

// exportCmd snapshots the canvas, then fetches images and writes the PDF off the
// update loop.
func (model *TUIModel) exportCmd(path string) tea.Cmd {
	api := model.api
	background := model.canvas.Background()
	materials := model.canvas.Materials()
	return func() tea.Msg {
		err := ExportPDF(path, background, materials, api.fetchImage)
		return exportedMsg{path: path, count: len(materials), err: err}
	}
}

func (model *TUIModel) probeSizeCmd(pending command) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		w, h, err := api.probeImageSize(pending.arg)
		return sizeProbedMsg{pending: pending, w: w, h: h, err: err}
	}
}

func newReconnectPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 15 * time.Second
	policy.MaxElapsedTime = 10 * time.Minute
	policy.Reset()
	return policy
}
