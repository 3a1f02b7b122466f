// engage-probe replays a directory of images against an engaged server
// and prints the streamed scores.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-engage/internal/log"
	"github.com/teslashibe/go-engage/pkg/vision"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "engaged base URL")
	dir := flag.String("frames", "", "Directory of JPEG/PNG frames to replay")
	contextName := flag.String("context", "lecture", "Weight context for the session")
	fps := flag.Float64("fps", 5, "Frames per second to send")
	count := flag.Int("count", 0, "Frames to send; 0 sends each file once")
	label := flag.Float64("label", -1, "Ground truth to record after the last frame; negative skips")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Usage: engage-probe -frames DIR [-server URL] [-context NAME]")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := probe{
		client:  newClient(*server),
		context: *contextName,
		fps:     *fps,
		count:   *count,
		label:   *label,
		logger:  log.Component("probe"),
	}
	if err := p.run(ctx, *dir); err != nil {
		log.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

type probe struct {
	client  *client
	context string
	fps     float64
	count   int
	label   float64
	logger  *slog.Logger
}

func (p *probe) run(ctx context.Context, dir string) error {
	frames, err := vision.NewDirProvider(dir)
	if err != nil {
		return err
	}
	count := p.count
	if count <= 0 {
		count = frames.Len()
	}

	id, err := p.client.createSession(ctx, p.context)
	if err != nil {
		return err
	}
	p.logger.Info("session created", "session", id, "context", p.context)

	conn, err := p.client.stream(ctx, id)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.watch(conn) })
	g.Go(func() error {
		// Closing the session ends the stream.
		defer conn.Close()
		return p.send(gctx, id, frames, count)
	})
	return g.Wait()
}

// send posts count frames at the configured rate, then closes the session.
func (p *probe) send(ctx context.Context, id string, frames vision.Provider, count int) error {
	limiter := rate.NewLimiter(rate.Limit(p.fps), 1)

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		jpeg, err := frames.CaptureFrame()
		if err != nil {
			return err
		}
		res, err := p.client.analyze(ctx, id, jpeg)
		if err != nil {
			p.logger.Warn("frame rejected", "frame", i+1, "error", err)
			continue
		}
		p.logger.Debug("frame sent", "frame", res.Frame, "score", res.EngagementScore)
	}

	cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p.label >= 0 {
		if err := p.client.addSample(cleanup, id, p.label); err != nil {
			p.logger.Warn("sample not recorded", "error", err)
		}
	}

	s, err := p.client.closeSession(cleanup, id)
	if err != nil {
		return err
	}
	fmt.Printf("\n📊 %d frames, avg %.1f (%s), %d blinks in %.0fs\n",
		s.Frames, s.AverageScore, s.Level, s.TotalBlinks, s.Duration)
	return nil
}

// watch prints streamed results until the connection closes.
func (p *probe) watch(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				p.logger.Debug("stream ended", "error", err)
			}
			return nil
		}
		var res frameResult
		if err := json.Unmarshal(data, &res); err != nil {
			p.logger.Warn("unreadable result", "error", err)
			continue
		}
		mark := ""
		if res.NeedsIntervention {
			mark = " ⚠️"
		}
		fmt.Printf("frame %4d  %5.1f  %-18s %-10s face=%v%s\n",
			res.Frame, res.EngagementScore, res.Level, res.Trend, res.FaceDetected, mark)
	}
}
