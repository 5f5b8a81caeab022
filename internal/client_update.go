package internal

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		switch typedMessage.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return model.quit()
		case tea.KeyEnter:
			line := strings.TrimSpace(model.textInput.Value())
			model.textInput.SetValue("")
			if line == "" {
				return model, nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				model.notify(err.Error())
				return model, nil
			}
			return model.runCommand(cmd)
		}
		var cmd tea.Cmd
		model.textInput, cmd = model.textInput.Update(typedMessage)
		return model, cmd

	case connectedMsg:
		model.isConnected = true
		model.connecting = false
		model.lastError = nil
		model.retry.Reset()
		model.ghosts.SetSelf(typedMessage.selfID)
		model.notify(fmt.Sprintf("connected as %s", shortID(typedMessage.selfID)))
		return model, nil

	case connectFailedMsg:
		model.isConnected = false
		model.connecting = false
		model.lastError = typedMessage.err
		return model, model.scheduleReconnect()

	case reconnectMsg:
		if model.isConnected || model.quitting {
			return model, nil
		}
		model.connecting = true
		return model, model.connectCmd()

	case serverEventMsg:
		model.handleServerEvent(typedMessage.event)
		cmds := []tea.Cmd{model.waitEventCmd()}
		if _, dropped := typedMessage.event.(Disconnected); dropped && !model.quitting {
			cmds = append(cmds, model.scheduleReconnect())
		}
		return model, tea.Batch(cmds...)

	case sizeProbedMsg:
		w, h := typedMessage.w, typedMessage.h
		if typedMessage.err != nil {
			model.notify(fmt.Sprintf("could not read image size, using 200x200: %v", typedMessage.err))
			w, h = 200, 200
		}
		pending := typedMessage.pending
		material := model.canvas.Add(pending.arg, pending.x, pending.y, w, h)
		model.notify(fmt.Sprintf("added %s", material.ID))
		return model, nil

	case materialsMsg:
		if typedMessage.err != nil {
			model.notify(fmt.Sprintf("materials: %v", typedMessage.err))
			return model, nil
		}
		if len(typedMessage.entries) == 0 {
			model.notify("material library is empty; /upload a PNG first")
			return model, nil
		}
		for _, entry := range typedMessage.entries {
			model.notify(fmt.Sprintf("%s  %s", entry.Name, entry.URL))
		}
		return model, nil

	case uploadedMsg:
		if typedMessage.err != nil {
			model.notify(fmt.Sprintf("upload: %v", typedMessage.err))
			return model, nil
		}
		model.notify(fmt.Sprintf("uploaded %s as %s", typedMessage.resp.OriginalName, typedMessage.resp.URL))
		return model, nil

	case generatedMsg:
		if typedMessage.err != nil {
			var bgErr *BackgroundError
			if errors.As(typedMessage.err, &bgErr) {
				model.notify(fmt.Sprintf("background (%s): %s", bgErr.Kind, bgErr.Message))
			} else {
				model.notify(fmt.Sprintf("background: %v", typedMessage.err))
			}
			return model, nil
		}
		model.canvas.SetBackground(typedMessage.url)
		model.notify("background generated")
		return model, nil

	case discardedMsg:
		if typedMessage.err != nil {
			model.notify(fmt.Sprintf("discard: %v", typedMessage.err))
			return model, nil
		}
		model.notify(fmt.Sprintf("removed %s from the library", typedMessage.filename))
		return model, nil

	case exportedMsg:
		if typedMessage.err != nil {
			model.notify(typedMessage.err.Error())
			return model, nil
		}
		model.notify(fmt.Sprintf("exported %d material(s) to %s", typedMessage.count, typedMessage.path))
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) handleServerEvent(event ServerEvent) {
	model.ghosts.HandleEvent(event)
	switch ev := event.(type) {
	case PeerJoined:
		if ev.Self {
			model.nickname = ev.Peer.Nickname
			model.color = ev.Peer.Color
			return
		}
		model.notify(fmt.Sprintf("%s joined", ev.Peer.Nickname))
	case RosterReceived:
		model.notify(fmt.Sprintf("%d other(s) on the canvas", len(model.sync.Peers())))
	case PeerLeft:
		model.notify(fmt.Sprintf("%s left", shortID(ev.UserID)))
	case OperationReceived:
		if bg, ok := ev.Op.Op.(BackgroundChanged); ok {
			model.notify(fmt.Sprintf("%s switched background to %s", ev.Op.Nickname, bg.BackgroundURL))
		}
	case Disconnected:
		model.isConnected = false
		model.lastError = ev.Err
		model.notify("connection lost")
	}
}

func (model *TUIModel) runCommand(cmd command) (tea.Model, tea.Cmd) {
	switch cmd.kind {
	case cmdAdd:
		if !cmd.hasSize {
			return model, model.probeSizeCmd(cmd)
		}
		material := model.canvas.Add(cmd.arg, cmd.x, cmd.y, cmd.w, cmd.h)
		model.notify(fmt.Sprintf("added %s", material.ID))
	case cmdMove:
		if _, ok := model.canvas.Move(cmd.id, cmd.x, cmd.y); !ok {
			model.notify(fmt.Sprintf("no material %s", cmd.id))
		}
	case cmdResize:
		if _, ok := model.canvas.Resize(cmd.id, cmd.w, cmd.h); !ok {
			model.notify(fmt.Sprintf("no material %s", cmd.id))
		}
	case cmdDelete:
		if !model.canvas.Delete(cmd.id) {
			model.notify(fmt.Sprintf("no material %s", cmd.id))
		}
	case cmdClear:
		model.canvas.Clear()
		model.notify("canvas cleared")
	case cmdBackground:
		model.canvas.SetBackground(cmd.arg)
	case cmdGenerate:
		model.notify("generating background…")
		return model, model.generateCmd()
	case cmdMaterials:
		return model, model.listMaterialsCmd()
	case cmdUpload:
		model.notify(fmt.Sprintf("uploading %s…", cmd.arg))
		return model, model.uploadCmd(cmd.arg)
	case cmdExport:
		model.notify(fmt.Sprintf("exporting to %s…", cmd.arg))
		return model, model.exportCmd(cmd.arg)
	case cmdDiscard:
		return model, model.discardCmd(cmd.arg)
	case cmdAt:
		if material, ok := model.canvas.MaterialAt(cmd.x, cmd.y); ok {
			model.notify(fmt.Sprintf("%s at %.0f,%.0f (%.0fx%.0f) %s", material.ID, material.X, material.Y, material.Width, material.Height, material.URL))
		} else {
			model.notify(fmt.Sprintf("none of your materials at %.0f,%.0f", cmd.x, cmd.y))
		}
	case cmdFiles:
		dir := cmd.arg
		if dir == "" {
			dir = defaultBrowsePath()
		}
		files, err := listPNGFiles(dir)
		if err != nil {
			model.notify(err.Error())
			break
		}
		if len(files) == 0 {
			model.notify(fmt.Sprintf("no PNG files in %s", dir))
		}
		for _, f := range files {
			model.notify(fmt.Sprintf("%s (%s)", f.Path, formatFileSize(f.Size)))
		}
	case cmdPeers:
		peers := model.sync.Peers()
		if len(peers) == 0 {
			model.notify("nobody else is here")
		}
		for _, p := range peers {
			model.notify(fmt.Sprintf("%s %s", p.Nickname, p.Color))
		}
	case cmdHelp:
		model.notify(commandHelp)
	case cmdQuit:
		return model.quit()
	}
	return model, nil
}

func (model *TUIModel) quit() (tea.Model, tea.Cmd) {
	model.quitting = true
	_ = model.sync.Close()
	return model, tea.Quit
}
