package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/okadri/richdoc/ot"
)

type submission struct {
	client *Client
	msg    ClientMessage
}

// Hub routes submitted changes through the Rebaser and fans accepted
// changes out to every connected editor. All routing runs on one goroutine.
type Hub struct {
	rebaser     *Rebaser
	broadcaster Broadcaster
	clients     map[*Client]bool

	register   chan *Client
	unregister chan *Client
	submit     chan submission
	announce   chan ServerMessage
	stop       chan struct{}
}

func NewHub(rebaser *Rebaser, broadcaster Broadcaster) *Hub {
	return &Hub{
		rebaser:     rebaser,
		broadcaster: broadcaster,
		clients:     make(map[*Client]bool),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		submit:      make(chan submission, 64),
		announce:    make(chan ServerMessage, 64),
		stop:        make(chan struct{}),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	events := h.broadcaster.Events()
	for {
		// Settle membership first so a submission never races the
		// registration that preceded it.
		select {
		case c := <-h.register:
			h.clients[c] = true
			continue
		case c := <-h.unregister:
			h.dropClient(c)
			continue
		default:
		}

		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			h.dropClient(c)
		case sub := <-h.submit:
			h.handleSubmit(sub)
		case msg := <-h.announce:
			h.broadcast(msg, nil)
		case <-h.stop:
			return
		case ev, ok := <-events:
			if !ok {
				// The broadcaster is gone; keep serving local clients.
				events = nil
				continue
			}
			h.broadcast(ServerMessage{
				Type:   MsgNewChange,
				Doc:    ev.Doc,
				Author: ev.Author,
				Change: ev.Change,
			}, nil)
		}
	}
}

func (h *Hub) dropClient(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) handleSubmit(sub submission) {
	ctx := context.Background()

	if sub.msg.Clear {
		if err := h.rebaser.Clear(ctx); err != nil {
			log.Printf("hub: clear: %v", err)
			sub.client.sendError(sub.msg.Doc, err.Error())
			return
		}
	}

	author := sub.msg.Author
	if author == "" {
		author = sub.client.ID
	}

	change, err := ot.NewChangeFromJSON(sub.msg.Change)
	if err != nil {
		sub.client.sendError(sub.msg.Doc, "invalid change: "+err.Error())
		return
	}

	res, err := h.rebaser.ApplyChange(ctx, sub.msg.Doc, change)
	if err != nil {
		log.Printf("hub: apply %q: %v", sub.msg.Doc, err)
		sub.client.sendError(sub.msg.Doc, err.Error())
		return
	}
	if res.Conflict {
		// Rejected: tell the sender its change did not land and hand it
		// the concurrent suffix to rebuild on.
		nack := ServerMessage{
			Type:    MsgReceivedChange,
			Doc:     sub.msg.Doc,
			Applied: json.RawMessage("false"),
		}
		if res.Parallel != nil {
			parallel, err := res.Parallel.Marshal()
			if err != nil {
				log.Printf("hub: encode parallel change: %v", err)
				return
			}
			nack.Parallel = parallel
		}
		sub.client.sendMsg(nack)
		return
	}

	applied, err := res.Applied.Marshal()
	if err != nil {
		log.Printf("hub: encode applied change: %v", err)
		return
	}

	// Ack the sender with the change as it landed, plus the concurrent
	// suffix it was rebased over.
	ack := ServerMessage{
		Type:    MsgReceivedChange,
		Doc:     sub.msg.Doc,
		Applied: applied,
	}
	if res.Parallel != nil {
		parallel, err := res.Parallel.Marshal()
		if err != nil {
			log.Printf("hub: encode parallel change: %v", err)
			return
		}
		ack.Parallel = parallel
	}
	sub.client.sendMsg(ack)

	msg := ServerMessage{
		Type:   MsgNewChange,
		Doc:    sub.msg.Doc,
		Author: author,
		Change: applied,
	}
	h.broadcast(msg, sub.client)

	if err := h.broadcaster.Publish(ctx, Event{
		Doc:    sub.msg.Doc,
		Author: author,
		Change: applied,
	}); err != nil {
		log.Printf("hub: publish: %v", err)
	}
}

// Announce fans a change accepted outside the WebSocket path out to every
// connected client, and relays it to other instances.
func (h *Hub) Announce(ctx context.Context, doc, author string, change json.RawMessage) {
	h.announce <- ServerMessage{
		Type:   MsgNewChange,
		Doc:    doc,
		Author: author,
		Change: change,
	}
	if err := h.broadcaster.Publish(ctx, Event{Doc: doc, Author: author, Change: change}); err != nil {
		log.Printf("hub: publish: %v", err)
	}
}

// broadcast sends a message to every connected client except skip.
func (h *Hub) broadcast(msg ServerMessage, skip *Client) {
	for c := range h.clients {
		if c != skip {
			c.sendMsg(msg)
		}
	}
}
