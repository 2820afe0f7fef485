package align

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const defaultPublishPrefix = "trajalign"

// Publisher publishes run results to MQTT, one retained message per unit and
// one for the run summary.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	timeout       time.Duration
}

// UnitMessage is the payload published for each unit.
type UnitMessage struct {
	RunID     string               `json:"runId"`
	Unit      string               `json:"unit"`
	Pass      Pass                 `json:"pass"`
	Matched   int                  `json:"matched"`
	Transform *SimilarityTransform `json:"transform,omitempty"`
	Residual  float64              `json:"residual,omitempty"`
	Reused    bool                 `json:"reused,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// SummaryMessage is the payload published once per run.
type SummaryMessage struct {
	RunID     string         `json:"runId"`
	Split     string         `json:"split"`
	Summary   string         `json:"summary"`
	Tally     CoverageTally  `json:"tally"`
	Clips     []ClipCoverage `json:"clips"`
	Timestamp int64          `json:"timestamp"`
}

// NewPublisher creates a publisher on an existing client. An empty prefix
// selects the default.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = defaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
		timeout:       5 * time.Second,
	}
}

// ConnectPublisher connects to the configured broker. Environment variables
// MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD override the
// configuration. With no broker set, publishing is disabled and nil, nil is
// returned.
func ConnectPublisher(cfg MQTTConfig) (*Publisher, error) {
	broker := envOr("MQTT_BROKER", cfg.Broker)
	if broker == "" {
		Logf("MQTT disabled: no broker configured")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	clientID := envOr("MQTT_CLIENT_ID", cfg.ClientID)
	if clientID == "" {
		clientID = defaultPublishPrefix
	}
	opts.SetClientID(clientID)
	if username := envOr("MQTT_USERNAME", cfg.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", cfg.Password))
	}
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connecting to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	Logf("Connected to MQTT broker %s", broker)
	return NewPublisher(client, cfg.PublishPrefix), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Close disconnects the client.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Consume publishes every unit result and the run summary.
func (p *Publisher) Consume(ctx context.Context, report *RunReport) error {
	for _, res := range report.Results() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.PublishUnit(report.RunID, report.Split, res); err != nil {
			return err
		}
	}
	return p.PublishSummary(report)
}

// PublishUnit publishes one unit result to {prefix}/{split}/{pass}/{unit}.
func (p *Publisher) PublishUnit(runID, split string, res UnitResult) error {
	msg := UnitMessage{
		RunID:     runID,
		Unit:      res.Unit,
		Pass:      res.Pass,
		Matched:   res.Correspondences.Len(),
		Timestamp: time.Now().Unix(),
	}
	if res.OK() {
		tr := res.Transform
		msg.Transform = &tr
		msg.Residual = res.Residual
		msg.Reused = res.Reused
	} else {
		msg.Error = res.Err.Error()
	}
	topic := fmt.Sprintf("%s/%s/%s/%s", p.publishPrefix, split, res.Pass, res.Unit)
	return p.publish(topic, msg)
}

// PublishSummary publishes the coverage of a run to {prefix}/{split}/summary.
func (p *Publisher) PublishSummary(report *RunReport) error {
	msg := SummaryMessage{
		RunID:     report.RunID,
		Split:     report.Split,
		Summary:   report.Coverage.Tally.Summary(),
		Tally:     report.Coverage.Tally,
		Clips:     report.Coverage.Clips,
		Timestamp: time.Now().Unix(),
	}
	topic := fmt.Sprintf("%s/%s/summary", p.publishPrefix, report.Split)
	if err := p.publish(topic, msg); err != nil {
		return err
	}
	Logf("Published run summary to %s", topic)
	return nil
}

func (p *Publisher) publish(topic string, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(p.timeout) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
