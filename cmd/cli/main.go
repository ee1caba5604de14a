package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/logship/pkg/controller"
)

func main() {
	addr := flag.String("addr", "localhost:19288", "primary address")
	password := flag.String("password", "password", "replication password")
	nodeID := flag.Uint("node-id", 900, "node id reported to the primary")
	flag.Parse()

	ctx := controller.NewClientContext(uint32(*nodeID), *password)
	ch := controller.NewCommandHandler(controller.DialPrimary(*addr))
	defer ch.Close()

	fmt.Println("🔹 logship cli ready. Type HELP for commands.")
	fmt.Println("")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), "EXIT") {
			break
		}
		fmt.Println(ch.HandleCommand(line, ctx))
	}
}
