package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/watchtower-mqtt/vigil/broker"
	"github.com/watchtower-mqtt/vigil/metrics"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <ip> <port>\n", os.Args[0])
		os.Exit(1)
	}
	addr := fmt.Sprintf("%s:%s", os.Args[1], os.Args[2])

	m := metrics.New(prometheus.DefaultRegisterer)
	b, err := broker.New(
		broker.WithAddr(addr),
		broker.WithCredentialsFile("credentials.txt"),
		broker.WithLogFile("log.txt"),
		broker.WithMetrics(m),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", metrics.Handler())
		_ = http.ListenAndServe("127.0.0.1:9091", nil)
	}()

	if err := b.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}
