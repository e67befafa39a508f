package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mathchat/internal/history"
	"mathchat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// MessageSink принимает кадры, прочитанные из сокета. Текст возвращённой
// ошибки уходит клиенту error-кадром как есть: реализации обязаны отдавать
// только безопасные для провода тексты, не сырые ошибки хранилища.
type MessageSink interface {
	HandleMessage(ctx context.Context, c *Client, frame InboundFrame) error
	HandleSync(ctx context.Context, c *Client, afterSeq uint64) error
}

// Client — один живой канал: одно соединение одного участника в одном
// журнале.
type Client struct {
	ID       uuid.UUID
	Username string

	conn  *websocket.Conn
	send  chan []byte
	scope models.Scope
	view  *history.View
	hub   *Hub

	// deliverMu держит пару «отметка в курсоре — постановка в очередь»
	// неделимой: live-кадры и кадры добора не перемежают свои seq.
	deliverMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, username string, scope models.Scope) *Client {
	return &Client{
		ID:       uuid.New(),
		Username: username,
		conn:     conn,
		send:     make(chan []byte, 256),
		scope:    scope,
		view:     history.NewView(scope),
		hub:      hub,
	}
}

// Scope возвращает журнал, к которому подключён канал.
func (c *Client) Scope() models.Scope {
	return c.scope
}

// LastSeq — курсор канала: последний доставленный seq.
func (c *Client) LastSeq() uint64 {
	return c.view.LastSeq()
}

// ReadPump читает кадры клиента и передаёт их в sink. По выходу канал
// снимается с учёта в hub.
func (c *Client) ReadPump(ctx context.Context, sink MessageSink) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame InboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Str("user", c.Username).Err(err).Msg("websocket read")
			}
			return
		}

		var err error
		switch frame.Type {
		case FrameSync:
			err = sink.HandleSync(ctx, c, frame.AfterSeq)
		case "", FrameMessage:
			err = sink.HandleMessage(ctx, c, frame)
		default:
			err = ErrInvalidFrame
		}
		if err != nil {
			c.SendError(err.Error())
		}
	}
}

// WritePump пишет кадры из очереди канала и поддерживает соединение
// ping-кадрами протокола.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver применяет сообщение к курсору канала и ставит готовый кадр в
// очередь как одно целое. false — этот seq каналу уже доставлен.
func (c *Client) deliver(msg models.Message, data []byte) (bool, error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if !c.view.Apply(msg) {
		return false, nil
	}
	return true, c.enqueue(data)
}

// SendHistory доставляет пакет истории, предварительно отфильтровав его
// через курсор канала: seq, уже ушедшие live-кадрами, в пакет не попадают
// и не дублируются.
func (c *Client) SendHistory(msgs []models.Message) error {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	fresh := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if c.view.Apply(m) {
			fresh = append(fresh, m)
		}
	}

	data, err := json.Marshal(HistoryFrame(fresh))
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// SendError шлёт клиенту error-кадр; сбой отправки здесь не фатален.
func (c *Client) SendError(text string) {
	data, err := json.Marshal(OutboundFrame{Type: FrameError, Error: text})
	if err != nil {
		return
	}
	_ = c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	// Снимок рассылки мог быть взят до снятия канала с учёта: запись в
	// закрытую очередь недопустима.
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
