package client

import (
	"testing"

	"github.com/concord-chat/relay/internal/session"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		name    string
		args    int
		wantErr bool
	}{
		{"/help", "help", 0, false},
		{"/JOIN general", "join", 1, false},
		{"/create-channel news daily headlines", "create-channel", 3, false},
		{"/", "", 0, true},
		{"hello", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if cmd.Name != tt.name || len(cmd.Args) != tt.args {
				t.Fatalf("got %+v", cmd)
			}
		})
	}
}

func TestJoinCommand(t *testing.T) {
	app, sess := connected(t)

	app.input.SetValue("/join #Random")
	run(t, app.handleSubmit())
	if !sess.called("switch c2") {
		t.Fatalf("join by name failed: %v", sess.calls)
	}

	app.input.SetValue("/join nowhere")
	if cmd := app.handleSubmit(); cmd != nil {
		t.Fatalf("unknown channel should not produce a command")
	}
	if !app.statusError {
		t.Fatalf("expected error status")
	}
}

func TestCreateChannelCommand(t *testing.T) {
	app, sess := connected(t)

	app.input.SetValue("/create-channel news daily headlines")
	run(t, app.handleSubmit())
	if !sess.called("create news/daily headlines") {
		t.Fatalf("create not called: %v", sess.calls)
	}

	app.input.SetValue("/create-channel")
	if cmd := app.handleSubmit(); cmd != nil || !app.modal {
		t.Fatalf("bare /create-channel should open the dialog")
	}
}

func TestDisconnectCommandReloads(t *testing.T) {
	app, sess := connected(t)

	app.input.SetValue("/disconnect")
	msg := run(t, app.handleSubmit())
	if _, ok := msg.(disconnectedMsg); !ok {
		t.Fatalf("unexpected result %#v", msg)
	}
	if !sess.called("disconnect") || !sess.called("bootstrap") {
		t.Fatalf("disconnect should tear down and bootstrap: %v", sess.calls)
	}
	if sess.calls[len(sess.calls)-1] != "bootstrap" {
		t.Fatalf("bootstrap must run after disconnect: %v", sess.calls)
	}
}

func TestDisconnectWorksWhileReconnecting(t *testing.T) {
	app, sess := connected(t)
	app.handleSessionEvent(session.StateChangedEvent{State: session.StateDisconnected})

	app.input.SetValue("/disconnect")
	run(t, app.handleSubmit())
	if !sess.called("disconnect") {
		t.Fatalf("commands must work while the composer is disabled")
	}
}

func TestThemeAndHelpCommands(t *testing.T) {
	app, _ := connected(t)

	app.input.SetValue("/theme nord")
	app.handleSubmit()
	if app.theme.Meta.Name != "Nord" {
		t.Fatalf("theme = %q", app.theme.Meta.Name)
	}

	app.input.SetValue("/theme nope")
	app.handleSubmit()
	if !app.statusError {
		t.Fatalf("unknown theme should report an error")
	}

	before := len(app.systemLines)
	app.input.SetValue("/help")
	app.handleSubmit()
	if len(app.systemLines) <= before {
		t.Fatalf("help should print lines")
	}

	shown := app.showMembers
	app.input.SetValue("/members")
	app.handleSubmit()
	if app.showMembers == shown {
		t.Fatalf("/members should toggle the member list")
	}

	app.input.SetValue("/bogus")
	app.handleSubmit()
	if !app.statusError || app.statusMessage != "unknown command: bogus" {
		t.Fatalf("status = %q", app.statusMessage)
	}
}
