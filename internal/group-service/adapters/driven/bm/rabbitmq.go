package bm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"group-ride/internal/config"
	messagebrokerdto "group-ride/internal/group-service/core/domain/message_broker_dto"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/mylogger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const reconnInterval = 5 // seconds

var ErrClosed = errors.New("amqp closed")

type RabbitMQ struct {
	ctx          context.Context
	cfg          config.RabbitMqconfig
	mylog        mylogger.Logger
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	mu           *sync.Mutex
}

var _ ports.IEventPublisher = (*RabbitMQ)(nil)

func New(ctx context.Context, rabbitmqCfg config.RabbitMqconfig, mylog mylogger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		ctx:   ctx,
		cfg:   rabbitmqCfg,
		mylog: mylog,
		mu:    &sync.Mutex{},
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

func (r *RabbitMQ) PublishMember(ctx context.Context, ev messagebrokerdto.MemberEvent) error {
	return r.PublishJSON(ctx, MemberRoutingKey(ev.GroupID, ev.Event), ev)
}

func (r *RabbitMQ) PublishChat(ctx context.Context, ev messagebrokerdto.ChatEvent) error {
	return r.PublishJSON(ctx, ChatRoutingKey(ev.GroupID), ev)
}

func (r *RabbitMQ) PublishGroupEnded(ctx context.Context, ev messagebrokerdto.GroupEnded) error {
	return r.PublishJSON(ctx, EndedRoutingKey(ev.GroupID), ev)
}

func (r *RabbitMQ) PublishJSON(ctx context.Context, routingKey string, msg any) error {
	if !r.IsAlive() {
		r.mylog.Action("publish").Error("amqp not alive", ErrClosed)
		go r.reconnect(r.ctx)
		return ErrClosed
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pubctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()

	return ch.PublishWithContext(pubctx, ports.GroupExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return false
	}
	if r.ch == nil || r.ch.IsClosed() {
		return false
	}
	return true
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.cfg.URL())
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(ports.GroupExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(time.Second * reconnInterval)
	defer t.Stop()
	mylog := r.mylog.Action("mb_reconnecting")

	for {
		select {
		case <-t.C:
			if err := r.connect(); err == nil {
				r.mylog.Action("mb_reconnection_completed").Info("Successfully reconnected!")
				return
			}
			mylog.Info("rabbitmq failed to reconnect")
		case <-ctx.Done():
			return
		}
	}
}
