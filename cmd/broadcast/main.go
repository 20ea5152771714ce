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

// The broadcast client captures RTP from a local encoder and fans it out to
// every viewer that joins the stream. Point an encoder at the -rtp address:
//
//	ffmpeg -re -i input.mp4 -an -c:v libvpx -f rtp rtp://127.0.0.1:5004
func main() {
	var (
		signalURL = flag.String("signal", "ws://localhost:8081", "signaling relay base URL")
		streamID  = flag.String("stream", "", "stream id to broadcast (required)")
		rtpAddr   = flag.String("rtp", "127.0.0.1:5004", "UDP address to receive encoder RTP on")
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

	client, err := signalclient.Dial(ctx, *signalURL, domain.StreamID(*streamID), "broadcaster", zapLogger)
	if err != nil {
		log.Fatalw("failed to dial signaling relay", "url", *signalURL, "error", err)
	}
	defer client.Close()

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", *streamID,
	)
	if err != nil {
		log.Fatalw("failed to create video track", "error", err)
	}

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

	broadcasterID := domain.BroadcasterID(utils.GenerateBroadcasterID())
	broadcaster := webrtcinfra.NewBroadcaster(broadcasterID, domain.StreamID(*streamID), rtcCfg, client, zapLogger)
	broadcaster.AddTrack(videoTrack)

	source := webrtcinfra.NewRTPSource(*rtpAddr, videoTrack, zapLogger)
	go func() {
		if err := source.Run(ctx); err != nil {
			log.Errorw("RTP source failed", "error", err)
			cancel()
		}
	}()

	if err := broadcaster.Start(); err != nil {
		log.Fatalw("failed to start broadcasting", "error", err)
	}
	log.Infow("broadcasting", "stream_id", *streamID, "broadcaster_id", broadcasterID, "rtp", *rtpAddr)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		if err := client.ReadLoop(broadcaster.HandleEnvelope); err != nil {
			log.Warnw("signaling channel closed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutting down broadcast")
	case <-readDone:
	case <-ctx.Done():
	}

	broadcaster.Stop()
	client.Close()
	log.Infow("broadcast stopped", "viewers_at_exit", broadcaster.ViewerCount())
}
