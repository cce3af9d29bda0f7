// corazonn-restart is a small admin CLI that sends a `/restart` command to a
// sensor node's admin port, optionally locating the node by name via
// mDNS/DNS-SD discovery instead of a hardcoded address.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/schuyler/corazonn/internal/discovery"
	"github.com/schuyler/corazonn/internal/wire"
	"github.com/spf13/pflag"
)

func main() {
	var (
		addr = pflag.StringP("addr", "a", "", "host:port of the sensor node's admin endpoint.")
		name = pflag.StringP("name", "n", "", "Discover a sensor node by its announced name instead of --addr.")
		help = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: corazonn-restart --addr host:port | --name corazonn-sensor-0")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	target := *addr
	if target == "" && *name != "" {
		found, err := resolveByName(*name)
		if err != nil {
			fmt.Fprintln(os.Stderr, "corazonn-restart:", err)
			os.Exit(1)
		}
		target = found
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "corazonn-restart: one of --addr or --name is required")
		pflag.Usage()
		os.Exit(2)
	}

	if err := sendRestart(target); err != nil {
		fmt.Fprintln(os.Stderr, "corazonn-restart:", err)
		os.Exit(1)
	}
	fmt.Printf("restart sent to %s\n", target)
}

// resolveByName browses for up to 3 seconds for a sensor node advertising
// name and returns its host:port.
func resolveByName(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var found string
	err := discovery.Browse(ctx, func(n discovery.Node) {
		if n.Name == name && found == "" {
			found = net.JoinHostPort(n.Host, fmt.Sprintf("%d", n.Port))
		}
	})
	if err != nil {
		return "", fmt.Errorf("browse: %w", err)
	}
	<-ctx.Done()

	if found == "" {
		return "", fmt.Errorf("no sensor node named %q found", name)
	}
	return found, nil
}

func sendRestart(addr string) error {
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	data, err := wire.EncodeRestart()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
