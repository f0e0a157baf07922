package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/log"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receiver"
)

// console is the receiver's event-bus consumer: a tview log pane plus an
// input field for operator commands, grounded on the teacher's
// service/app.App chatbox/input split (renderUI/listenOnWebhook), adapted
// from a two-party send/receive loop into a read-only multi-address log with
// an identity-key-replay command.
type console struct {
	app  *tview.Application
	log  *tview.TextView
	recv *receiver.Receiver
}

func newConsole(bus *events.Bus, r *receiver.Receiver) *console {
	c := &console{
		app:  tview.NewApplication(),
		recv: r,
	}

	c.log = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.log.SetBorder(true).SetTitle(" Receiver ")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0)
	input.SetBorder(true).SetTitle(" /retry <number> <device> ")
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := input.GetText()
		input.SetText("")
		if text == "" {
			return
		}
		c.handleCommand(text)
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.log, 0, 1, false).
		AddItem(input, 3, 0, true)

	c.app.SetRoot(layout, true).SetFocus(input)
	c.subscribe(bus)
	return c
}

func (c *console) subscribe(bus *events.Bus) {
	bus.On(events.Message, func(p any) {
		m := p.(events.MessagePayload)
		body := ""
		if m.Message.Body != nil {
			body = *m.Message.Body
		}
		c.printf("[green]%s:[-] %s\n", m.Source, body)
	})
	bus.On(events.Sent, func(p any) {
		s := p.(events.SentPayload)
		body := ""
		if s.Message != nil && s.Message.Body != nil {
			body = *s.Message.Body
		}
		c.printf("[yellow]sent -> %s:[-] %s\n", s.Destination, body)
	})
	bus.On(events.Receipt, func(p any) {
		env := p.(events.ReceiptPayload).Envelope
		c.printf("[blue]receipt from %s[-]\n", env.Source)
	})
	bus.On(events.Read, func(p any) {
		r := p.(events.ReadPayload)
		c.printf("[blue]%s read %d[-]\n", r.Sender, r.Timestamp)
	})
	bus.On(events.Contact, func(p any) {
		cr := p.(events.ContactPayload).Contact
		c.printf("[white]contact: %s (%s)[-]\n", cr.Number, cr.Name)
	})
	bus.On(events.ContactSync, func(p any) {
		s := p.(events.ContactSyncPayload)
		c.printf("[white]contacts sync complete: %d records[-]\n", s.Count)
	})
	bus.On(events.Group, func(p any) {
		switch payload := p.(type) {
		case events.GroupPayload:
			c.printf("[white]group %x: %s (%s)[-]\n", payload.Group.ID, payload.Group.Type, payload.Source)
		case events.GroupRecordPayload:
			c.printf("[white]group record: %x %s[-]\n", payload.Record.ID, payload.Record.Name)
		}
	})
	bus.On(events.GroupSync, func(p any) {
		s := p.(events.GroupSyncPayload)
		c.printf("[white]groups sync complete: %d records[-]\n", s.Count)
	})
	bus.On(events.Error, func(p any) {
		c.printf("[red]error: %v[-]\n", p.(events.ErrorPayload).Cause)
	})
}

func (c *console) handleCommand(text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "/retry":
		if len(fields) != 3 {
			c.printf("[red]usage: /retry <number> <device>[-]\n")
			return
		}
		deviceID, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			c.printf("[red]bad device id: %v[-]\n", err)
			return
		}
		addr := model.NewAddress(fields[1], uint32(deviceID))
		c.recv.TryMessageAgain(context.Background(), addr)
	default:
		c.printf("[red]unknown command: %s[-]\n", fields[0])
	}
}

func (c *console) printf(format string, args ...any) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.log, format, args...)
		c.log.ScrollToEnd()
	})
}

func (c *console) run() {
	if err := c.app.Run(); err != nil {
		log.Fatal("console: run", zap.Error(err))
	}
}

func (c *console) stop() {
	c.app.Stop()
}
