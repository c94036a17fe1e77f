// Command client is an interactive REPL against a running broker node,
// grounded on the teacher's cmd/client/main.go (banner, HELP text,
// bufio.Scanner command loop) and extended with CREATE-TOPIC/STATUS
// commands for the catalog surface this spec adds.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"josefine/catalog"
	"josefine/client"
	"josefine/server"
)

func main() {
	serverAddr := flag.String("server", "localhost:7000", "Broker address")
	flag.Parse()

	printBanner()
	log.Printf("connecting to %s", *serverAddr)

	c, err := client.NewRaftClient(*serverAddr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	log.Println("connected")
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch strings.ToUpper(parts[0]) {
		case "PUT":
			if len(parts) < 3 {
				fmt.Println("Usage: PUT <key> <value>")
				continue
			}
			if err := c.Put(parts[1], []byte(strings.Join(parts[2:], " "))); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("OK")
			}

		case "GET":
			if len(parts) != 2 {
				fmt.Println("Usage: GET <key>")
				continue
			}
			value, err := c.Get(parts[1])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("%s\n", value)
			}

		case "DELETE":
			if len(parts) != 2 {
				fmt.Println("Usage: DELETE <key>")
				continue
			}
			if err := c.Delete(parts[1]); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("OK")
			}

		case "CREATE-TOPIC":
			if len(parts) < 2 {
				fmt.Println("Usage: CREATE-TOPIC <name> [partitions] [replication-factor]")
				continue
			}
			spec := catalog.TopicSpec{Name: parts[1], NumPartitions: 1, ReplicationFactor: 1}
			if len(parts) >= 3 {
				if n, err := strconv.Atoi(parts[2]); err == nil {
					spec.NumPartitions = n
				}
			}
			if len(parts) >= 4 {
				if n, err := strconv.Atoi(parts[3]); err == nil {
					spec.ReplicationFactor = n
				}
			}
			metas, err := c.CreateTopics([]catalog.TopicSpec{spec})
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for _, m := range metas {
				fmt.Printf("created %q with %d partitions\n", m.Name, len(m.Partitions))
			}

		case "STATUS":
			status, err := c.Status()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			printStatus(status)

		case "HELP":
			printHelp()

		case "QUIT", "EXIT":
			fmt.Println("disconnecting")
			return

		default:
			fmt.Printf("unknown command: %s\n", parts[0])
			fmt.Println("type HELP for available commands")
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("error reading input: %v", err)
	}
}

func printBanner() {
	fmt.Println("josefine client")
}

func printHelp() {
	fmt.Println(`Available commands:
  PUT <key> <value>
  GET <key>
  DELETE <key>
  CREATE-TOPIC <name> [partitions] [replication-factor]
  STATUS
  HELP
  QUIT / EXIT`)
}

func printStatus(s *server.StatusResponse) {
	fmt.Printf("node %d: role=%s commit_index=%d topics=%d\n", s.NodeID, s.Role, s.CommitIndex, len(s.Topics))
}
