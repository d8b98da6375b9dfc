package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/model"
)

type TurnWriter interface {
	Create(turn *model.ChatTurn) error
}

// TurnPersistWorker drains the chat turn queue into the database.
type TurnPersistWorker struct {
	conn      *amqp.Connection
	repo      TurnWriter
	queueName string
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnPersistWorker(conn *amqp.Connection, repo TurnWriter, queueName string, prefetch int) *TurnPersistWorker {
	if prefetch <= 0 {
		prefetch = 16
	}
	return &TurnPersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		prefetch:  prefetch,
	}
}

func (w *TurnPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Printf("worker: delivery channel for %s closed", w.queueName)
					return
				}
				if err := w.handle(d.Body); err != nil {
					log.Printf("worker: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}

// handle decodes and stores one turn. Poison messages are dropped by the caller.
func (w *TurnPersistWorker) handle(body []byte) error {
	var turn model.ChatTurn
	if err := json.Unmarshal(body, &turn); err != nil {
		return fmt.Errorf("decode chat turn failed: %w", err)
	}
	if turn.SessionID == "" || turn.Role == "" {
		return fmt.Errorf("chat turn is missing session or role")
	}
	turn.ID = 0
	if err := w.repo.Create(&turn); err != nil {
		return fmt.Errorf("persist chat turn failed: %w", err)
	}
	return nil
}

func (w *TurnPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
