package main

import (
	log "github.com/sirupsen/logrus"

	"taskboard/board-client/gateway"
	"taskboard/board-client/notice"
	"taskboard/board-client/persistence"
	"taskboard/board-client/snapshot"
	"taskboard/domain"
)

type engine struct {
	store   *snapshot.Store
	gateway *gateway.Gateway
	notices *notice.Broker
	logger  *log.Logger
	user    *domain.Member
}

func newEngine() (*engine, error) {
	timeout, err := parsePositiveDuration("--timeout", flagTimeout)
	if err != nil {
		return nil, err
	}
	logger := log.New()
	if flagDebug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	var user *domain.Member
	if flagUser != "" {
		user = &domain.Member{ID: flagUser, Fullname: flagName}
	}
	store := snapshot.New()
	notices := notice.NewBroker()
	gw := gateway.New(store, persistence.New(flagServer, flagToken), gateway.Options{
		Timeout: timeout,
		Logger:  logger,
		User:    user,
		Notices: notices,
	})
	return &engine{store: store, gateway: gw, notices: notices, logger: logger, user: user}, nil
}
