// Command agentctld wires the persistence store, event bus, process
// supervisor, task dispatcher, health monitor, pool engine, and the
// Agent Manager facade together, following the component-construction
// order and graceful-shutdown sequencing of the teacher's
// cmd/cliaimonitor/main.go, trimmed of the dashboard/instance-lock/
// PID-file concerns that belong to the excluded CLI surface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cliaimonitor/agentctl/internal/config"
	"github.com/cliaimonitor/agentctl/internal/dispatcher"
	"github.com/cliaimonitor/agentctl/internal/errs"
	"github.com/cliaimonitor/agentctl/internal/events"
	"github.com/cliaimonitor/agentctl/internal/health"
	"github.com/cliaimonitor/agentctl/internal/httpapi"
	natsclient "github.com/cliaimonitor/agentctl/internal/nats"
	"github.com/cliaimonitor/agentctl/internal/notifications"
	"github.com/cliaimonitor/agentctl/internal/notifications/external"
	"github.com/cliaimonitor/agentctl/internal/persistence"
	"github.com/cliaimonitor/agentctl/internal/pool"
	"github.com/cliaimonitor/agentctl/internal/supervisor"

	"github.com/cliaimonitor/agentctl/internal/manager"

	_ "modernc.org/sqlite"
)

func main() {
	configPath := flag.String("config", "agentctl.yaml", "path to runtime configuration")
	flag.Parse()

	rt, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[MAIN] failed to load config: %v", err)
	}

	db, err := sql.Open("sqlite", persistence.DSN(rt.DBPath))
	if err != nil {
		log.Fatalf("[MAIN] failed to open database: %v", err)
	}
	defer db.Close()

	store, err := persistence.New(db)
	if err != nil {
		log.Fatalf("[MAIN] failed to init persistence: %v", err)
	}

	eventStore, err := events.NewSQLStore(db)
	if err != nil {
		log.Fatalf("[MAIN] failed to init event store: %v", err)
	}
	bus := events.NewBus(eventStore)

	natsURL := rt.NATSURL
	var embeddedNATS *natsclient.EmbeddedServer
	if natsURL == "" {
		embeddedNATS, err = natsclient.NewEmbeddedServer(natsclient.EmbeddedServerConfig{Port: rt.NATSEmbeddedPort})
		if err != nil {
			log.Printf("[MAIN] embedded nats server disabled, config invalid: %v", err)
		} else if err := embeddedNATS.Start(); err != nil {
			log.Printf("[MAIN] embedded nats server disabled, start failed: %v", err)
			embeddedNATS = nil
		} else {
			natsURL = embeddedNATS.URL()
			defer embeddedNATS.Shutdown()
		}
	}

	if natsURL != "" {
		nc, err := natsclient.NewClient(natsURL)
		if err != nil {
			log.Printf("[MAIN] nats mirror disabled, connect failed: %v", err)
		} else {
			bus.SetMirror(events.NewNATSMirror(nc, "agentctl.events"))
			defer nc.Close()
		}
	}

	router := notifications.NewRouter(nil)
	router.AddChannel(notifications.NewToastChannel("agentctl"))
	if slackURL := os.Getenv("AGENTCTL_SLACK_WEBHOOK"); slackURL != "" {
		router.AddChannel(external.NewSlackNotifier(external.SlackConfig{WebhookURL: slackURL}))
	}

	sup := supervisor.New(bus)
	disp := dispatcher.New(sup, bus)
	sup.OnMessage(disp.HandleMessage)

	alertSub := bus.Subscribe("all", []events.Kind{events.KindAgentRestartExhausted, events.KindAgentHeartbeatTimeout})
	go func() {
		for ev := range alertSub {
			router.Route(ev)
		}
	}()

	exitSub := bus.Subscribe("all", []events.Kind{events.KindAgentExited})
	go func() {
		for ev := range exitSub {
			if payload, ok := ev.Payload.(events.AgentExited); ok {
				disp.CancelAgentTasks(payload.AgentID, errs.ProcessExit, fmt.Sprintf("process exited (code %d)", payload.ExitCode))
			}
		}
	}()

	mgr := manager.New(manager.Config{Store: store, Bus: bus, Supervisor: sup, Dispatcher: disp})
	poolEngine := pool.New(mgr, bus)
	healthMonitor := health.NewMonitor(mgr, bus, nil, nil)
	mgr.AttachPool(poolEngine)
	mgr.AttachHealth(healthMonitor)
	for _, tmpl := range rt.Templates {
		mgr.RegisterTemplate(tmpl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)
	go poolEngine.RunSweeper(ctx, 30*time.Second)

	var httpServer *http.Server
	if rt.HTTPAddr != "" {
		httpServer = &http.Server{Addr: rt.HTTPAddr, Handler: httpapi.NewRouter(mgr)}
		go func() {
			log.Printf("[MAIN] status surface listening on %s", rt.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[MAIN] http server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("[MAIN] shutting down")
	cancel()
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	for _, agent := range mgr.List() {
		_ = mgr.StopAgent(agent.ID, "shutdown")
	}
	log.Println("[MAIN] shutdown complete")
}
