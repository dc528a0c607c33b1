package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/config"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// Delivery is one inbound message with the context needed to ack it.
type Delivery struct {
	Drone models.Drone
	Kind  models.QueueKind
	Body  []byte

	Tag   uint64
	Acker amqp.Acknowledger
}

// Ack confirms successful processing.
func (d Delivery) Ack() error {
	if d.Acker == nil {
		return nil
	}
	return d.Acker.Ack(d.Tag, false)
}

// Discard rejects the message without requeue. Used for malformed or
// poison messages where redelivery cannot help.
func (d Delivery) Discard() error {
	if d.Acker == nil {
		return nil
	}
	return d.Acker.Nack(d.Tag, false, false)
}

// Gateway owns the two broker connections: one dedicated to consuming,
// one to publishing. A single AMQP channel is not safe to share between
// a consumer callback and ad-hoc publishers.
type Gateway struct {
	cfg *config.Config

	consumeConn *amqp.Connection
	publishConn *amqp.Connection
	consumeCh   *amqp.Channel
	publishCh   *amqp.Channel

	pubMu sync.Mutex

	deliveries chan Delivery
	connErrs   chan *amqp.Error
	closed     chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewGateway creates an unconnected Gateway.
func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		cfg:        cfg,
		deliveries: make(chan Delivery),
		connErrs:   make(chan *amqp.Error, 4),
		closed:     make(chan struct{}),
	}
}

// Connect establishes both connections. The consume channel gets a prefetch
// window so unacked messages are bounded; exchanges are declared idempotently.
func (g *Gateway) Connect() error {
	url := g.cfg.AMQPURL()

	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to connect consume connection: %w", err)
	}
	g.consumeConn = conn

	g.consumeCh, err = conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}
	if err := g.consumeCh.Qos(g.cfg.RabbitMQ.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	g.publishConn, err = amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to connect publish connection: %w", err)
	}
	g.publishCh, err = g.publishConn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}

	if err := g.declareExchanges(); err != nil {
		return fmt.Errorf("failed to declare exchanges: %w", err)
	}

	g.consumeConn.NotifyClose(g.connErrs)
	g.publishConn.NotifyClose(g.connErrs)

	log.Printf("Gateway: connected to %s:%d", g.cfg.RabbitMQ.Host, g.cfg.RabbitMQ.Port)
	return nil
}

func (g *Gateway) declareExchanges() error {
	exchanges := []string{
		g.cfg.RabbitMQ.Exchanges.Telemetry,
		g.cfg.RabbitMQ.Exchanges.Commands,
		g.cfg.RabbitMQ.Exchanges.Video,
		g.cfg.RabbitMQ.Exchanges.Alerts,
		g.cfg.RabbitMQ.Exchanges.GUI,
	}
	for _, name := range exchanges {
		if err := g.publishCh.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeclareDroneTopics creates the drone-facing and GUI-facing queues for one
// drone and binds them to their exchanges. Safe to call repeatedly.
func (g *Gateway) DeclareDroneTopics(drone *models.Drone) error {
	videoArgs := amqp.Table{"x-message-ttl": int32(g.cfg.RabbitMQ.VideoTTLMillis)}

	// Drone → backend queues
	droneQueues := []struct {
		queue      string
		exchange   string
		routingKey string
		durable    bool
		args       amqp.Table
	}{
		{drone.QueueName(models.QueueTelemetry), g.cfg.RabbitMQ.Exchanges.Telemetry, drone.TelemetryTopic, true, nil},
		{"commands." + drone.DroneID, g.cfg.RabbitMQ.Exchanges.Commands, drone.CommandTopic, true, nil},
		{drone.QueueName(models.QueueVideo), g.cfg.RabbitMQ.Exchanges.Video, drone.VideoTopic, false, videoArgs},
		{drone.QueueName(models.QueueAlerts), g.cfg.RabbitMQ.Exchanges.Alerts, drone.AlertTopic, true, nil},
	}

	for _, q := range droneQueues {
		if _, err := g.publishCh.QueueDeclare(q.queue, q.durable, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.queue, err)
		}
		if err := g.publishCh.QueueBind(q.queue, q.routingKey, q.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.queue, err)
		}
	}

	// Backend → browser queues, named by the GUI token, bound by drone id
	guiTypes := []struct {
		messageType string
		durable     bool
		args        amqp.Table
	}{
		{models.GUITelemetry, true, nil},
		{models.GUIVideo, false, videoArgs},
		{models.GUIDetection, true, nil},
		{models.GUIAlerts, true, nil},
		{models.GUIStatus, true, nil},
	}

	for _, q := range guiTypes {
		queue := drone.GUIQueueName(q.messageType)
		routingKey := models.GUIRoutingKey(drone.DroneID, q.messageType)
		if _, err := g.publishCh.QueueDeclare(queue, q.durable, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		if err := g.publishCh.QueueBind(queue, routingKey, g.cfg.RabbitMQ.Exchanges.GUI, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue, err)
		}
	}

	// Browser → backend command queue
	cmdQueue := drone.QueueName(models.QueueGUICommand)
	cmdRouting := models.GUIRoutingKey(drone.DroneID, "commands")
	if _, err := g.publishCh.QueueDeclare(cmdQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cmdQueue, err)
	}
	if err := g.publishCh.QueueBind(cmdQueue, cmdRouting, g.cfg.RabbitMQ.Exchanges.GUI, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", cmdQueue, err)
	}

	log.Printf("Gateway: topics declared for drone=%s", drone.DroneID)
	return nil
}

// BindDroneConsumer starts consuming one of the drone's queues, forwarding
// deliveries into the shared channel read by the router loop.
//
// The queue is checked passively first: if the drone never completed
// registration its queues don't exist yet, and that must not fail the whole
// router. The check runs on a throwaway channel because a failed passive
// declare closes the channel it ran on.
func (g *Gateway) BindDroneConsumer(drone models.Drone, kind models.QueueKind) error {
	queue := drone.QueueName(kind)

	if !g.queueExists(queue) {
		log.Printf("Gateway: queue not found, skipping: %s", queue)
		return nil
	}

	tag := fmt.Sprintf("%s.%s", kind, drone.DroneID)
	msgs, err := g.consumeCh.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for msg := range msgs {
			select {
			case g.deliveries <- Delivery{
				Drone: drone,
				Kind:  kind,
				Body:  msg.Body,
				Tag:   msg.DeliveryTag,
				Acker: msg.Acknowledger,
			}:
			case <-g.closed:
				return
			}
		}
	}()

	return nil
}

func (g *Gateway) queueExists(queue string) bool {
	ch, err := g.consumeConn.Channel()
	if err != nil {
		return false
	}
	defer ch.Close()

	// The broker only checks existence on a passive declare; durability
	// and arguments are not compared.
	_, err = ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	return err == nil
}

// Deliveries returns the shared inbound channel. All bound queues across all
// drones feed it, so reading it sequentially serializes message handling.
func (g *Gateway) Deliveries() <-chan Delivery {
	return g.deliveries
}

// ConnectionErrors reports fatal connection-level failures.
func (g *Gateway) ConnectionErrors() <-chan *amqp.Error {
	return g.connErrs
}

// Publish serializes payload as JSON and publishes it on the publish channel.
func (g *Gateway) Publish(exchange, routingKey string, payload any, persistent bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.pubMu.Lock()
	defer g.pubMu.Unlock()

	return g.publishCh.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		Body:         body,
	})
}

// GUIPersistent is the single durability policy for GUI-facing messages:
// video frames are transient, everything else survives a broker restart.
func GUIPersistent(messageType string) bool {
	return messageType != models.GUIVideo
}

// PublishGUI publishes a router-originated message to the GUI exchange.
// Delivery is best effort: the GUI is a live dashboard, not a system of
// record, so failures are logged and swallowed.
func (g *Gateway) PublishGUI(droneID, messageType string, payload any) {
	routingKey := models.GUIRoutingKey(droneID, messageType)
	if err := g.Publish(g.cfg.RabbitMQ.Exchanges.GUI, routingKey, payload, GUIPersistent(messageType)); err != nil {
		log.Printf("Gateway: GUI publish failed [%s/%s]: %v", droneID, messageType, err)
	}
}

// SendCommand forwards a command to the drone's own command queue.
func (g *Gateway) SendCommand(drone models.Drone, cmd models.CommandMessage) error {
	return g.Publish(g.cfg.RabbitMQ.Exchanges.Commands, drone.CommandTopic, cmd, true)
}

// Close stops consuming and closes both connections. Safe to call more than
// once and on a gateway that never connected.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.closed)

		if g.consumeCh != nil {
			_ = g.consumeCh.Close()
		}
		if g.consumeConn != nil && !g.consumeConn.IsClosed() {
			_ = g.consumeConn.Close()
		}
		if g.publishConn != nil && !g.publishConn.IsClosed() {
			_ = g.publishConn.Close()
		}

		g.wg.Wait()
		log.Println("Gateway: connections closed")
	})
}
