package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"ragchat/internal/chain"
	"ragchat/internal/domain"
	"ragchat/internal/service"
	"ragchat/internal/source"
)

type answerMsg struct {
	answer chain.Answer
	err    error
}

// actionMsg reports a finished add or reindex together with the refreshed
// source list.
type actionMsg struct {
	status  string
	summary string
	sources []domain.SourceDescriptor
	// rebuilt is set when the index was rebuilt and the chat starts over.
	rebuilt bool
	// added is the location the action itself stored, if any.
	added string
}

type sourcesChangedMsg struct{}

type watchIdleMsg struct{}

func askCmd(ctx context.Context, port Port, sess *service.Session, question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := port.Ask(ctx, sess, question)
		return answerMsg{answer: ans, err: err}
	}
}

func uploadPDFCmd(ctx context.Context, port Port, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return finish(port, service.Status("", fmt.Errorf("read %s: %w", path, err)), false)
		}
		res, err := port.UploadPDF(ctx, data, filepath.Base(path))
		return finishAdd(port, res, err)
	}
}

func addURLCmd(ctx context.Context, port Port, url string, kind domain.SourceKind) tea.Cmd {
	return func() tea.Msg {
		res, err := port.AddURL(ctx, url, kind)
		return finishAdd(port, res, err)
	}
}

func reindexCmd(ctx context.Context, port Port, status string) tea.Cmd {
	return func() tea.Msg {
		err := port.Initialize(ctx, true)
		return finish(port, service.Status(status, err), err == nil)
	}
}

// externalChangeCmd reindexes only when the sources on disk differ from
// the ones the shell last saw.
func externalChangeCmd(ctx context.Context, port Port, known map[string]struct{}) tea.Cmd {
	return func() tea.Msg {
		current, err := port.Sources()
		if err != nil || sameSources(known, current) {
			return watchIdleMsg{}
		}
		return reindexCmd(ctx, port, "Sources changed on disk, index rebuilt.")()
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return sourcesChangedMsg{}
	}
}

func finish(port Port, status string, rebuilt bool) actionMsg {
	srcs, _ := port.Sources()
	return actionMsg{status: status, summary: port.Summary(), sources: srcs, rebuilt: rebuilt}
}

func finishAdd(port Port, res service.AddResult, err error) actionMsg {
	msg := finish(port, service.AddStatus(res, err), err == nil && !res.Incremental)
	if err == nil {
		msg.added = res.Descriptor.Location
	}
	return msg
}

func sameSources(known map[string]struct{}, current []domain.SourceDescriptor) bool {
	if len(known) != len(current) {
		return false
	}
	for _, d := range current {
		if _, ok := known[d.Location]; !ok {
			return false
		}
	}
	return true
}

func sourceSet(srcs []domain.SourceDescriptor) map[string]struct{} {
	m := make(map[string]struct{}, len(srcs))
	for _, d := range srcs {
		m[d.Location] = struct{}{}
	}
	return m
}

func describeSource(d domain.SourceDescriptor) string {
	if d.Kind == domain.KindPDF {
		return fmt.Sprintf("%-8s %s", d.Kind, filepath.Base(d.Location))
	}
	url, err := source.ReadPointer(d.Location)
	if err != nil {
		return fmt.Sprintf("%-8s %s (%v)", d.Kind, filepath.Base(d.Location), err)
	}
	return fmt.Sprintf("%-8s %s", d.Kind, url)
}
