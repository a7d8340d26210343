package server

import (
	"log"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/servuscms/servus/internal/nostr"
	"github.com/servuscms/servus/internal/site"
)

// handleRelay runs the relay protocol over one WebSocket connection.
// REQ answers from stored events only and closes with EOSE; there is no
// live forwarding of events accepted after the subscription, so CLOSE
// has nothing to tear down.
func (s *Server) handleRelay(c echo.Context, st *site.Site) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("Relay connection opened for %s", st.Domain)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}

		msg, err := nostr.ParseMessage(data)
		if err != nil {
			log.Printf("Dropping relay frame from %s: %v", st.Domain, err)
			continue
		}

		switch msg.Type {
		case nostr.MessageEvent:
			s.handlePublish(conn, st, msg.Event)

		case nostr.MessageReq:
			if err := s.handleReq(conn, st, msg.SubID, msg.Filters); err != nil {
				log.Printf("REQ %s on %s: %v", msg.SubID, st.Domain, err)
				return nil
			}

		case nostr.MessageClose:
			// Subscriptions end at EOSE; nothing is held per sub id.
		}
	}
}

// handlePublish verifies ownership and routes the event to the catalog.
// Events signed by anyone but the site owner are ignored without a
// reply: this is a single-writer server, not a public relay.
func (s *Server) handlePublish(conn *websocket.Conn, st *site.Site, ev *nostr.Event) {
	if ev.PubKey != st.Config.Pubkey {
		log.Printf("Ignoring event %s on %s: signer is not the site owner", ev.ID, st.Domain)
		return
	}

	var accepted bool
	var detail string
	if ev.Kind == nostr.KindDelete {
		removed, err := st.Delete(ev)
		if err != nil {
			detail = err.Error()
		} else if !removed {
			detail = "no matching event to delete"
		}
		accepted = err == nil && removed
	} else {
		err := st.Accept(ev)
		if err != nil {
			detail = err.Error()
		} else {
			log.Printf("Event %s (kind %d) stored on %s", ev.ID, ev.Kind, st.Domain)
		}
		accepted = err == nil
	}

	if err := conn.WriteMessage(websocket.TextMessage, nostr.OKFrame(ev.ID, accepted, detail)); err != nil {
		log.Printf("OK reply on %s: %v", st.Domain, err)
	}
}

// handleReq streams every stored event matching any filter, then EOSE.
func (s *Server) handleReq(conn *websocket.Conn, st *site.Site, subID string, filters []nostr.Filter) error {
	events, err := st.StoredEvents(filters)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := conn.WriteMessage(websocket.TextMessage, nostr.EventFrame(subID, ev)); err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.TextMessage, nostr.EOSEFrame(subID))
}
