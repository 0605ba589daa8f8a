package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/logger"
)

// qosAtLeastOnce is used for every subscription and publish.
const qosAtLeastOnce byte = 1

// disconnectQuiesce is how long Disconnect lets in-flight work finish, in milliseconds.
const disconnectQuiesce = 250

// ErrNoBroker is returned when MQTT is used without a broker address.
var ErrNoBroker = errors.New("mqtt broker not configured")

// Dial connects to the broker and returns a bridge for the machine.
// The bridge resubscribes after every reconnect once Subscribe was called.
func Dial(ctx context.Context, cfg config.MQTT, controllerID string, timeout time.Duration, m Machine, onConfig ConfigHandler) (*Bridge, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}

	ctx = logger.WithName(ctx, "mqtt")
	installLogger(ctx)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = controllerID + "-" + uuid.NewString()
	}

	var b *Bridge

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(timeout)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(paho.Client) {
		if b != nil {
			b.onConnect()
		}
	})

	client := paho.NewClient(opts)
	b = newBridge(ctx, client, NewTopics(cfg.TopicPrefix, controllerID), timeout, m, onConfig)

	if err := wait(ctx, client.Connect(), timeout); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	logger.InfoKV(ctx, "Connected to MQTT broker", "broker", cfg.Broker, "client_id", clientID)

	return b, nil
}

// wait blocks until the token completes, ctx ends or timeout passes.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("mqtt: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pahoLogger forwards the MQTT client's internal logs to zap at a fixed level.
type pahoLogger struct {
	log   *zap.SugaredLogger
	level zapcore.Level
}

func (p pahoLogger) Println(v ...any) {
	p.log.Logln(p.level, v...)
}

func (p pahoLogger) Printf(format string, v ...any) {
	p.log.Logf(p.level, format, v...)
}

// installLogger routes paho's package loggers into the context logger.
// Client chatter stays at warn unless the controller itself runs at debug.
func installLogger(ctx context.Context) {
	floor := zapcore.WarnLevel
	if logger.Level() == zapcore.DebugLevel {
		floor = zapcore.DebugLevel
	}

	l := logger.FromContext(ctx).Named("paho").WithOptions(logger.WithLevel(floor))

	paho.ERROR = pahoLogger{log: l, level: zapcore.ErrorLevel}
	paho.CRITICAL = pahoLogger{log: l, level: zapcore.ErrorLevel}
	paho.WARN = pahoLogger{log: l, level: zapcore.WarnLevel}
	paho.DEBUG = pahoLogger{log: l, level: zapcore.DebugLevel}
}
