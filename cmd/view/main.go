package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"livecast/internal/core/domain"
	signalclient "livecast/internal/infrastructure/signal"
	webrtcinfra "livecast/internal/infrastructure/webrtc"
	"livecast/pkg/config"
	"livecast/pkg/logger"
	"livecast/pkg/utils"

	"github.com/pion/webrtc/v3"
)

// The view client joins a stream and forwards the received media to a local
// UDP address where a player picks it up:
//
//	ffplay -protocol_whitelist rtp,udp -i stream.sdp
func main() {
	var (
		signalURL = flag.String("signal", "ws://localhost:8081", "signaling relay base URL")
		streamID  = flag.String("stream", "", "stream id to watch (required)")
		playAddr  = flag.String("play", "127.0.0.1:5002", "UDP address to forward received RTP to")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	zapLogger := logger.New(*logLevel)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *streamID == "" {
		log.Fatal("-stream is required")
	}

	cfg := config.DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := signalclient.Dial(ctx, *signalURL, domain.StreamID(*streamID), "viewer", zapLogger)
	if err != nil {
		log.Fatalw("failed to dial signaling relay", "url", *signalURL, "error", err)
	}
	defer client.Close()

	var rtcCfg webrtcinfra.Config
	for _, s := range cfg.WebRTC.ICEServers {
		rtcCfg.ICEServers = append(rtcCfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(rtcCfg.ICEServers) == 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}
	rtcCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	rtcCfg.PortRange.Max = cfg.WebRTC.PortRange.Max

	sink := webrtcinfra.NewUDPSink(*playAddr, zapLogger)
	viewerID := domain.ViewerID(utils.GenerateViewerID())

	viewer := webrtcinfra.NewViewer(
		viewerID,
		domain.StreamID(*streamID),
		rtcCfg,
		client,
		sink,
		func(state domain.ViewerState) {
			log.Infow("viewer state changed", "viewer_id", viewerID, "state", state)
		},
		zapLogger,
	)

	if err := viewer.Announce(); err != nil {
		log.Fatalw("failed to announce viewer", "error", err)
	}
	log.Infow("watching", "stream_id", *streamID, "viewer_id", viewerID, "play", *playAddr)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		if err := client.ReadLoop(viewer.HandleEnvelope); err != nil {
			log.Warnw("signaling channel closed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutting down viewer")
	case <-readDone:
	case <-ctx.Done():
	}

	viewer.Disconnect()
	client.Close()
	log.Infow("viewer stopped", "bytes_received", sink.BytesReceived())
}
