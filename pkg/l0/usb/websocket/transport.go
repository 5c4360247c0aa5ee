// Package websocket exposes the device bulk endpoints over a websocket.
// Each websocket binary message carries one USB packet.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/l0link/pkg/framework"
	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/usb"
)

// DefaultPath is where the host attaches.
const DefaultPath = "/usb"

var errBusy = errors.New("another host is attached")

// Transport implements comm.Transport. Only one host is attached at a
// time, additional hosts are rejected during handshake.
type Transport struct {
	// Addr is the listen address used by Run. If empty, Run doesn't
	// listen and Handler must be served elsewhere.
	Addr string
	Path string
	Info usb.DeviceInfo

	lock   sync.Mutex
	conn   *websocket.Conn
	doneCh chan struct{}
	connCh chan struct{}
}

// New creates a Transport.
func New(addr string, info usb.DeviceInfo) *Transport {
	return &Transport{
		Addr:   addr,
		Path:   DefaultPath,
		Info:   info,
		connCh: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving the host endpoint and /info.
func (t *Transport) Handler() http.Handler {
	path := t.Path
	if path == "" {
		path = DefaultPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Server{Handshake: t.handshake, Handler: t.serve})
	mux.HandleFunc("/info", t.serveInfo)
	return mux
}

// Run implements comm.Transport.
func (t *Transport) Run(ctx context.Context) error {
	if t.Addr == "" {
		<-ctx.Done()
		t.detach()
		return ctx.Err()
	}
	srv := &http.Server{Addr: t.Addr, Handler: t.Handler()}
	glog.Infof("USB over websocket listening on %s%s", t.Addr, t.Path)
	err := fx.RunWithContextCancel(ctx, func() {
		t.detach()
		srv.Close()
	}, srv.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

// MaxPacketSize implements comm.Transport.
func (t *Transport) MaxPacketSize() int {
	if t.Info.MaxPacketSize > 0 {
		return t.Info.MaxPacketSize
	}
	return usb.FullSpeedPacketSize
}

// WaitConnection implements comm.Transport.
func (t *Transport) WaitConnection(ctx context.Context) error {
	t.lock.Lock()
	attached, ch := t.conn != nil, t.connCh
	t.lock.Unlock()
	if attached {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadPacket implements comm.Transport.
func (t *Transport) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	ws := t.current()
	if ws == nil {
		return 0, comm.ErrDisconnected
	}
	ws.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { ws.SetReadDeadline(time.Now()) })
	n, err := ws.Read(buf)
	if !stop() {
		return 0, ctx.Err()
	}
	if err != nil {
		t.end(ws)
		return 0, fmt.Errorf("%w: %v", comm.ErrDisconnected, err)
	}
	return n, nil
}

// WritePacket implements comm.Transport.
func (t *Transport) WritePacket(ctx context.Context, packet []byte) error {
	ws := t.current()
	if ws == nil {
		return comm.ErrDisconnected
	}
	deadline, _ := ctx.Deadline()
	ws.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { ws.SetWriteDeadline(time.Now()) })
	_, err := ws.Write(packet)
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		t.end(ws)
		return fmt.Errorf("%w: %v", comm.ErrDisconnected, err)
	}
	return nil
}

func (t *Transport) handshake(conf *websocket.Config, req *http.Request) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.conn != nil {
		glog.Warningf("rejected host from %s: %v", req.RemoteAddr, errBusy)
		return errBusy
	}
	return nil
}

func (t *Transport) serve(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	t.lock.Lock()
	if t.conn != nil {
		t.lock.Unlock()
		ws.Close()
		return
	}
	doneCh := make(chan struct{})
	t.conn, t.doneCh = ws, doneCh
	close(t.connCh)
	t.connCh = make(chan struct{})
	t.lock.Unlock()

	glog.Infof("host attached from %s", ws.Request().RemoteAddr)
	<-doneCh
	glog.Infof("host detached from %s", ws.Request().RemoteAddr)
}

func (t *Transport) current() *websocket.Conn {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.conn
}

func (t *Transport) end(ws *websocket.Conn) {
	t.lock.Lock()
	if t.conn == ws {
		t.conn = nil
		close(t.doneCh)
	}
	t.lock.Unlock()
	ws.Close()
}

func (t *Transport) detach() {
	if ws := t.current(); ws != nil {
		t.end(ws)
	}
}

type infoResponse struct {
	usb.DeviceInfo
	Attached bool `json:"attached"`
}

func (t *Transport) serveInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&infoResponse{DeviceInfo: t.Info, Attached: t.current() != nil})
}
