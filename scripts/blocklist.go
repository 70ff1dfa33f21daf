// Command blocklist manages the caller block list used by the screening
// engine. Numbers added here are rejected at the network edge on their next
// call.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/callshield/callshield/pkg/history"
	"github.com/callshield/callshield/pkg/shield"
)

func main() {
	configPath := flag.String("config", "examples/localcall/config.yaml", "path to config file")
	add := flag.String("add", "", "number to block")
	remove := flag.String("remove", "", "number to unblock")
	list := flag.Bool("list", false, "print blocked numbers")
	flag.Parse()

	if *add == "" && *remove == "" && !*list {
		fmt.Println("usage: blocklist [-config=...] -add=+8210... | -remove=+8210... | -list")
		os.Exit(1)
	}

	cfg, err := shield.LoadConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	if cfg.History.BlocklistPath == "" {
		fmt.Println("history.blocklist_path is not set; nothing to manage")
		os.Exit(1)
	}

	bl, err := history.NewFileBlockList(cfg.History.BlocklistPath)
	if err != nil {
		fmt.Println("open blocklist:", err)
		os.Exit(1)
	}

	switch {
	case *add != "":
		if err := bl.Add(*add); err != nil {
			fmt.Println("add:", err)
			os.Exit(1)
		}
		fmt.Println("blocked:", *add)
	case *remove != "":
		if err := bl.Remove(*remove); err != nil {
			fmt.Println("remove:", err)
			os.Exit(1)
		}
		fmt.Println("unblocked:", *remove)
	}

	if *list {
		for _, n := range bl.Numbers() {
			fmt.Println(n)
		}
	}
}
