package main

import (
	"fmt"
	"time"

	gosip "github.com/ghettovoice/gosip"
	gosiplog "github.com/ghettovoice/gosip/log"
	"gopkg.in/ini.v1"

	"gsm2sip/audiobridge"
)

var sipServer gosip.Server

func startSIP(cfg *Settings, host string) error {
	coreLog.Info("starting SIP server")

	port := cfg.SIPPort()
	portRange := cfg.SIPPortRange()

	logger := gosiplog.NewLogrusLogger(sipLog, "SIP", nil)

	sipServer = gosip.NewServer(gosip.ServerConfig{Host: host, UserAgent: "gsm2sip"}, nil, nil, logger)

	var listenErr error
	for i := 0; i <= portRange; i++ {
		addr := fmt.Sprintf(":%d", port+i)
		listenErr = sipServer.Listen("udp", addr)
		if listenErr == nil {
			coreLog.Infof("SIP server listening on %s/udp", addr)
			return nil
		}
		coreLog.Warnf("failed to listen on %s: %v", addr, listenErr)
	}
	return fmt.Errorf("sip listen: %w", listenErr)
}

func main() {
	cfg, err := ini.Load("settings.ini")
	if err != nil {
		fmt.Printf("failed to load settings: %v\n", err)
		return
	}

	settings, err := LoadSettings(cfg)
	if err != nil {
		fmt.Printf("failed to parse settings: %v\n", err)
		return
	}

	if err := initLogging(cfg); err != nil {
		fmt.Printf("failed to init logging: %v\n", err)
		return
	}
	defer closeLogging()
	coreLog.Info("settings loaded", cfg.Section("").KeysHash())

	host := settings.PublicAddress()
	if host == "" {
		host, err = detectHostIP()
		if err != nil {
			coreLog.Fatalf("failed to detect host address: %v", err)
		}
		coreLog.Infof("using detected host address %s", host)
	}

	runner := audiobridge.NewSuRunner(settings.SuBinary(), audioLog)
	if settings.Diagnostics() {
		audiobridge.Diagnostics(runner, audioLog)
	}

	if err := startSIP(settings, host); err != nil {
		coreLog.Fatalf("failed to start SIP server: %v", err)
	}
	if err := startGateway(settings, runner, host); err != nil {
		coreLog.Fatalf("failed to start gateway: %v", err)
	}

	coreLog.Info("performing a graceful shutdown...")
	time.Sleep(time.Second)
}
