// Command routerd is a demo harness: it ingests a newline-delimited batch
// of already-verified edges, feeds them through a routing.Engine backed by
// an on-disk store, runs one routing table update, and prints the
// resulting forwarding table. It exists for manual inspection of the
// routing core, not as a network-facing node.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/overlaymesh/routingcore/clock"
	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
	"github.com/overlaymesh/routingcore/routing"
	"github.com/overlaymesh/routingcore/store"
)

var log = logrus.WithField("component", "routerd")

var (
	sourceFlag = &cli.StringFlag{
		Name:     "source",
		Usage:    "peer ID of this node, used as the BFS root",
		Required: true,
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "directory for the bbolt database backing compaction state",
		Value: "./routerd-data",
	}
	edgesFlag = &cli.StringFlag{
		Name:     "edges",
		Usage:    "path to a newline-delimited edge batch file (peer0,peer1,nonce)",
		Required: true,
	}
)

func main() {
	app := &cli.App{
		Name:  "routerd",
		Usage: "load an edge batch and print the resulting forwarding table",
		Flags: []cli.Flag{sourceFlag, dataDirFlag, edgesFlag},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("routerd: exiting")
	}
}

func run(c *cli.Context) error {
	source := peerid.ID(c.String(sourceFlag.Name))

	edges, err := loadEdgeBatch(c.String(edgesFlag.Name))
	if err != nil {
		return errors.Wrap(err, "routerd: loading edge batch")
	}

	db, err := store.New(c.Context, c.String(dataDirFlag.Name))
	if err != nil {
		return errors.Wrap(err, "routerd: opening store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("routerd: failed to close store cleanly")
		}
	}()

	engine, err := routing.NewEngine(source, clock.Real{}, db, routing.Config{})
	if err != nil {
		return errors.Wrap(err, "routerd: constructing engine")
	}
	defer engine.Stop()

	result, err := engine.AddVerifiedEdges(edges)
	if err != nil {
		return errors.Wrap(err, "routerd: ingesting edge batch")
	}
	log.WithFields(logrus.Fields{
		"edges_loaded": len(edges),
		"edges_added":  len(result.AddedEdges),
	}).Info("routerd: edge batch ingested")

	update, err := engine.RoutingTableUpdate(routing.RoutingTableUpdateRequest{})
	if err != nil {
		return errors.Wrap(err, "routerd: computing routing table")
	}

	printForwardingTable(source, update.PeerForwarding)
	return nil
}

// loadEdgeBatch parses lines of the form "peer0,peer1,nonce". Blank lines
// and lines starting with # are skipped. Edges are taken as already
// verified; routerd has no signing keys of its own to check against.
func loadEdgeBatch(path string) ([]edge.Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var edges []edge.Edge
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("routerd: %s:%d: expected 3 comma-separated fields, got %d", path, lineNo, len(fields))
		}

		nonce, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("routerd: %s:%d: invalid nonce: %w", path, lineNo, err)
		}

		peer0 := peerid.ID(strings.TrimSpace(fields[0]))
		peer1 := peerid.ID(strings.TrimSpace(fields[1]))
		lo, hi, swapped := peerid.Canonicalize(peer0, peer1)
		if swapped {
			log.WithFields(logrus.Fields{"peer0": peer0, "peer1": peer1}).Debug("routerd: canonicalizing edge endpoint order")
		}
		edges = append(edges, edge.Edge{Peer0: lo, Peer1: hi, Nonce: nonce})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func printForwardingTable(source peerid.ID, table map[peerid.ID][]peerid.ID) {
	fmt.Printf("forwarding table for %s:\n", source)
	for dest, nextHops := range table {
		hops := make([]string, len(nextHops))
		for i, h := range nextHops {
			hops[i] = string(h)
		}
		fmt.Printf("  %s -> [%s]\n", dest, strings.Join(hops, ", "))
	}
}
