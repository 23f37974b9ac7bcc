// Command drivetopo builds the network topology described by the DOT
// file provided as a positional argument and drops into a small
// interactive loop for running commands on its nodes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"slrz.net/drivetopo/manager"
	"slrz.net/drivetopo/platform"
	_ "slrz.net/drivetopo/platform/debug"
	"slrz.net/drivetopo/topology"
)

var (
	engine = flag.String("platform",
		getEnvOrDefault("DRIVETOPO_PLATFORM", "debug"),
		"realize the topology with `engine`")
	autoMgmt = flag.Bool("automgmt", os.Getenv("DRIVETOPO_AUTO_MGMT") != "",
		"create automagic management network")
	retries = flag.Int("retries",
		atoi(getEnvOrDefault("DRIVETOPO_BUILD_RETRIES", "0")),
		"retry a failed build up to `num` times")
	verbose = flag.Bool("v", os.Getenv("DRIVETOPO_VERBOSE") != "",
		"log build progress")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix(filepath.Base(os.Args[0]) + ": ")
	if flag.Parse(); flag.NArg() != 1 {
		log.Fatalf("usage: drivetopo [options…] topology.dot")
	}
	var topoOpts []topology.ParseOption
	if *autoMgmt {
		topoOpts = append(topoOpts, topology.WithAutoMgmtNetwork)
	}

	g, err := topology.ParseDOTFile(flag.Arg(0), topoOpts...)
	if err != nil {
		log.Fatal(err)
	}
	p, err := platform.New(*engine)
	if err != nil {
		log.Fatal(err)
	}

	mgrOpts := []manager.Option{
		manager.WithBuildRetries(*retries),
	}
	if *verbose {
		mgrOpts = append(mgrOpts, manager.WithLogger(log.Default()))
	}
	m := manager.New(p, mgrOpts...)

	ctx := context.Background()
	if err := m.Load(g); err != nil {
		log.Fatal(err)
	}
	if err := m.Build(ctx); err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := m.Unbuild(ctx); err != nil {
			log.Printf("unbuild: %v", err)
		}
	}()

	interact(ctx, m)
}

// interact reads "<node> <command…>" lines from stdin and runs each
// command on the named node's default shell.
func interact(ctx context.Context, m *manager.Manager) {
	fmt.Printf("nodes: %s\n", strings.Join(m.Nodes(), " "))
	fmt.Println(`type "<node> <command…>" to run a command, "exit" to finish`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("drivetopo> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			fmt.Println("expected: <node> <command…>")
			continue
		}
		node, err := m.Get(fields[0])
		if err != nil {
			fmt.Println(err)
			continue
		}
		response, err := node.Execute(ctx, fields[1])
		if err != nil {
			fmt.Println(err)
			continue
		}
		if response != "" {
			fmt.Println(response)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("read stdin: %v", err)
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(a string) int {
	if i, err := strconv.Atoi(a); err == nil {
		return i
	}
	return 0
}
