// Package notify delivers driver pushes, buyer SMS and buyer email off the
// request path through a small worker pool.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	jobTimeout   = 30 * time.Second
	drainTimeout = 10 * time.Second
)

type PushSender interface {
	SendPush(ctx context.Context, registrationID string, data map[string]any) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone string, message string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to string, subject string, body string) error
}

type Devices interface {
	GetActiveDevice(context.Context, int64) (entities.Device, error)
}

type job struct {
	name string
	run  func(context.Context) error
}

type Dispatcher struct {
	jobs    chan job
	workers int

	devices Devices
	push    PushSender
	sms     SMSSender
	email   EmailSender
}

func NewDispatcher(workers int, queueSize int, devices Devices, push PushSender, sms SMSSender, email EmailSender) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	return &Dispatcher{
		jobs:    make(chan job, queueSize),
		workers: workers,
		devices: devices,
		push:    push,
		sms:     sms,
		email:   email,
	}
}

// Start runs the workers until ctx is done, then delivers what is left in
// the queue and returns.
func (d *Dispatcher) Start(ctx context.Context) error {
	eg := errgroup.Group{}

	for i := 0; i < d.workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case j := <-d.jobs:
					d.run(context.Background(), j)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	_ = eg.Wait()

	d.drain()

	return nil
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case j := <-d.jobs:
			d.run(ctx, j)
		default:
			return
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := j.run(ctx); err != nil {
		zap.L().Info("error deliver notification", zap.String("job", j.name), zap.Error(err))
	}
}

func (d *Dispatcher) enqueue(j job) {
	select {
	case d.jobs <- j:
	default:
		zap.L().Warn("notification queue is full, dropping job", zap.String("job", j.name))
	}
}

// NotifyDriver pushes status and the current order to the driver's latest
// active device.
func (d *Dispatcher) NotifyDriver(driverID int64, order entities.Order, status entities.PushStatus, extra map[string]any) {
	data := map[string]any{
		"status": int(status),
		"order":  models.NewOrderResponse(order),
	}

	for key, value := range extra {
		data[key] = value
	}

	d.enqueue(job{
		name: "push " + status.String(),
		run: func(ctx context.Context) error {
			device, err := d.devices.GetActiveDevice(ctx, driverID)
			if err != nil {
				if errors.Is(err, storage.ErrNoRows) {
					zap.L().Warn("driver has no registered and active device", zap.Int64("driver_id", driverID))
					return nil
				}

				return err
			}

			return d.push.SendPush(ctx, device.RegistrationID, data)
		},
	})
}

func (d *Dispatcher) SendSMS(phone string, message string) {
	d.enqueue(job{
		name: "sms",
		run: func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, phone, message)
		},
	})
}

func (d *Dispatcher) SendEmail(to string, subject string, body string) {
	d.enqueue(job{
		name: "email",
		run: func(ctx context.Context) error {
			return d.email.SendEmail(ctx, to, subject, body)
		},
	})
}
