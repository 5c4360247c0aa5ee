package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/msgs"
	"github.com/robotalks/l0link/pkg/l0/usb"
)

// ErrNotConnected indicates no device is opened.
var ErrNotConnected = errors.New("not connected")

// Config provides options of the shell.
type Config struct {
	// DeviceURL is opened when the shell starts, see usb.Dial.
	DeviceURL string
	// Timeout waiting for the acknowledgement of a command.
	Timeout time.Duration
}

var defaultConfig = Config{
	Timeout: time.Second,
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *Config
	// Dial opens a device, defaults to usb.Dial.
	Dial func(string) (io.ReadWriteCloser, error)

	lock sync.Mutex
	link *Link
}

// Link is an opened device.
type Link struct {
	URL    string
	Client *comm.Client

	cancel func()
	doneCh chan struct{}
	err    error
}

// Done is closed when the link is gone.
func (l *Link) Done() <-chan struct{} {
	return l.doneCh
}

// Err returns the error the link terminated with.
func (l *Link) Err() error {
	<-l.doneCh
	return l.err
}

const (
	shellKey       = "$shell"
	unopenedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&StatusCmd,
	}
)

func init() {
	if val := os.Getenv("L0_DEVICE_URL"); val != "" {
		defaultConfig.DeviceURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceURL, "device", defaultConfig.DeviceURL, "Device URL opened at start (ws://, serial://).")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command timeout.")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
		Dial:   usb.Dial,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unopenedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires an opened device.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Link() == nil {
			c.Err(ErrNotConnected)
			return
		}
		fn(c)
	}
}

// Link returns the current link, nil if not opened or already gone.
func (s *Shell) Link() *Link {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.link == nil {
		return nil
	}
	select {
	case <-s.link.doneCh:
		return nil
	default:
		return s.link
	}
}

// Open opens the device at rawURL, replacing the current one.
func (s *Shell) Open(rawURL string) error {
	rw, err := s.Dial(rawURL)
	if err != nil {
		return err
	}
	link := &Link{URL: rawURL, Client: comm.NewClient(rw), doneCh: make(chan struct{})}
	var ctx context.Context
	ctx, link.cancel = context.WithCancel(context.Background())
	go func() {
		defer close(link.doneCh)
		link.err = link.Client.Run(ctx)
	}()

	s.Close()
	s.lock.Lock()
	s.link = link
	s.lock.Unlock()
	s.setPrompt(fmt.Sprintf("%s > ", rawURL))
	return nil
}

// Close closes the current device.
func (s *Shell) Close() {
	s.lock.Lock()
	link := s.link
	s.link = nil
	s.lock.Unlock()
	if link != nil {
		link.cancel()
		<-link.doneCh
		s.setPrompt(unopenedPrompt)
	}
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Do sends msg and waits for the acknowledgement.
func (s *Shell) Do(msg msgs.Incoming) (msgs.Outgoing, error) {
	link := s.Link()
	if link == nil {
		return 0, ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
	defer cancel()
	reply, err := link.Client.DoWait(ctx, msg)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("command timeout")
	}
	return reply, err
}

type replyOutput struct {
	Command string `json:"command"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DoCommand runs a command and prints the result.
func DoCommand(c *ishell.Context, msg msgs.Incoming) error {
	s := ShellFrom(c)
	reply, err := s.Do(msg)
	if s.OutputJSON {
		out := replyOutput{Command: msg.String()}
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Reply = reply.String()
		}
		data, _ := json.Marshal(&out)
		c.Println(string(data))
		return err
	}
	if err != nil {
		c.Err(err)
		return err
	}
	if reply == msgs.Acknowledgement {
		c.Println("OK")
		return nil
	}
	c.Println(reply.String())
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Config.DeviceURL != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.DeviceURL)
		}
		if err := s.Open(s.Config.DeviceURL); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.DeviceURL, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens a device.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "URL",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			if err := ShellFrom(c).Open(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the current device.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// StatusCmd prints the link status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			link := s.Link()
			if s.OutputJSON {
				var out struct {
					URL       string `json:"url,omitempty"`
					Connected bool   `json:"connected"`
				}
				if link != nil {
					out.URL, out.Connected = link.URL, true
				}
				data, _ := json.Marshal(&out)
				c.Println(string(data))
				return
			}
			if link == nil {
				c.Println("Not connected")
				return
			}
			c.Printf("Connected %s\n", link.URL)
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).Run(flag.Args()...)
}
