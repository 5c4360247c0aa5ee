// Package bridge relays the device link to MQTT.
//
// Topics, under the broker URL prefix:
//
//	<id>/meta  retained JSON Meta, cleared when the bridge exits
//	<id>/cmd   LinkMessage commands forwarded to the device
//	<id>/msg   LinkMessage events, one per command
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/usb"
	"github.com/robotalks/l0link/pkg/l1/mqtt"
	"github.com/robotalks/l0link/pkg/l1/msgs"
	"github.com/robotalks/l0link/pkg/version"
)

// ErrNotConnected indicates the device link is down.
var ErrNotConnected = errors.New("device not connected")

var errLinkDropped = errors.New("request timeout, link dropped")

// Meta is published retained on <id>/meta.
type Meta struct {
	ID        string `json:"id"`
	DeviceURL string `json:"device"`
	Connected bool   `json:"connected"`
	Bridge    string `json:"bridge"`
}

// Publisher publishes payloads to topics.
type Publisher interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Bridge relays commands from MQTT to the device and replies back.
type Bridge struct {
	ID             string
	DeviceURL      string
	RequestTimeout time.Duration
	RedialInterval time.Duration
	// Dial opens the device link, defaults to usb.Dial.
	Dial func(string) (io.ReadWriteCloser, error)

	Queue     *mqtt.Queue
	Publisher Publisher

	lock       sync.Mutex
	client     *comm.Client
	cancelLink context.CancelFunc
	connected  bool
}

// New creates a Bridge connecting to the broker in conf.
func New(conf *Config) (*Bridge, error) {
	id := conf.ID()
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(conf.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	opts.SetBinaryWill(topicPrefix+id+"/meta", nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("l0link:" + id)
	}
	b := &Bridge{
		ID:             id,
		DeviceURL:      conf.DeviceURL,
		RequestTimeout: conf.RequestTimeout,
		RedialInterval: conf.RedialInterval,
		Dial:           usb.Dial,
		Queue:          mqtt.NewQueue(opts, topicPrefix),
	}
	b.Publisher = b.Queue
	b.Queue.OnConnect = func(*mqtt.Queue) { b.publishMeta() }
	b.Queue.Sub(b.topic("cmd"), b.HandleCommand)
	return b, nil
}

// MustNew creates a Bridge and fails on error.
func MustNew(conf *Config) *Bridge {
	b, err := New(conf)
	if err != nil {
		log.Fatalln(err)
	}
	return b
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if b.Queue != nil {
		b.Queue.Connect()
	}
	for {
		err := b.serveDevice(ctx)
		if ctx.Err() != nil {
			break
		}
		glog.Warningf("device link %s: %v", b.DeviceURL, err)
		select {
		case <-ctx.Done():
		case <-time.After(b.RedialInterval):
			continue
		}
		break
	}
	b.Publisher.PubWith(b.topic("meta"), nil, 1, true).Wait()
	if b.Queue != nil {
		b.Queue.Close()
	}
	return nil
}

// HandleCommand implements mqtt.Handler for <id>/cmd.
func (b *Bridge) HandleCommand(topic string, payload []byte) {
	cmd, err := msgs.Decode(payload)
	if err != nil {
		glog.Warningf("invalid command on %s: %v", topic, err)
		return
	}
	msg, err := cmd.Incoming()
	if err != nil {
		b.publishEvent(msgs.NewEvent(cmd.Seq, 0, err))
		return
	}
	client := b.currentClient()
	if client == nil {
		b.publishEvent(msgs.NewEvent(cmd.Seq, 0, ErrNotConnected))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.RequestTimeout)
		defer cancel()
		reply, err := client.DoWait(ctx, msg)
		if errors.Is(err, context.DeadlineExceeded) {
			// A late acknowledgement would be matched to the next request.
			b.dropLink(client)
		}
		b.publishEvent(msgs.NewEvent(cmd.Seq, reply, err))
	}()
}

func (b *Bridge) serveDevice(ctx context.Context) error {
	rw, err := b.Dial(b.DeviceURL)
	if err != nil {
		return err
	}
	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	client := comm.NewClient(rw)
	client.Notifier = comm.StateChangedFunc(b.linkStateChanged)
	b.setClient(client, cancel)
	defer b.setClient(nil, nil)
	err = client.Run(linkCtx)
	if ctx.Err() == nil && linkCtx.Err() != nil {
		return errLinkDropped
	}
	return err
}

func (b *Bridge) setClient(client *comm.Client, cancel context.CancelFunc) {
	b.lock.Lock()
	b.client, b.cancelLink = client, cancel
	b.lock.Unlock()
}

func (b *Bridge) dropLink(client *comm.Client) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.client == client && b.cancelLink != nil {
		b.cancelLink()
	}
}

func (b *Bridge) currentClient() *comm.Client {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.client
}

func (b *Bridge) linkStateChanged(ctx context.Context, state comm.ConnState) {
	glog.Infof("device %s %s", b.DeviceURL, state)
	b.lock.Lock()
	b.connected = state == comm.Connected
	b.lock.Unlock()
	b.publishMeta()
}

// Meta returns current meta information.
func (b *Bridge) Meta() Meta {
	b.lock.Lock()
	defer b.lock.Unlock()
	return Meta{
		ID:        b.ID,
		DeviceURL: b.DeviceURL,
		Connected: b.connected,
		Bridge:    version.ProductDescription(),
	}
}

func (b *Bridge) publishMeta() {
	meta := b.Meta()
	data, err := json.Marshal(&meta)
	if err != nil {
		glog.Errorf("encode meta: %v", err)
		return
	}
	b.Publisher.PubWith(b.topic("meta"), data, 1, true)
}

func (b *Bridge) publishEvent(ev *msgs.LinkMessage) {
	data, err := ev.Encode()
	if err != nil {
		glog.Errorf("encode event: %v", err)
		return
	}
	b.Publisher.PubWith(b.topic("msg"), data, 0, false)
}

func (b *Bridge) topic(name string) string {
	return b.ID + "/" + name
}
