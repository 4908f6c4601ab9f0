// Command lnsquery is a thin client for lnsd's control port: it looks up a
// hostname by IP, an IP by hostname, dumps the whole mapping, or tells the
// daemon to quit.
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/joshuafuller/lnsd/internal/control"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := pflag.NewFlagSet("lnsquery", pflag.ContinueOnError)
	all := fs.BoolP("all", "a", false, "print the full hostname-to-IP mapping")
	ip := fs.StringP("ip", "i", "", "look up the hostname announcing this IP")
	name := fs.StringP("name", "n", "", "look up the IPs announcing this hostname")
	quit := fs.BoolP("quit", "q", false, "ask the daemon to terminate")
	port := fs.IntP("port", "p", control.DefaultPort, "control port")
	help := fs.BoolP("help", "h", false, "print usage and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *help {
		fmt.Fprintln(os.Stderr, "Usage: lnsquery (-a | -i IP | -n NAME | -q) [-p ctrlport]")
		fs.PrintDefaults()
		return 0
	}

	var req control.Message
	switch {
	case *all:
		req = control.GetAll{}
	case *ip != "":
		req = control.IP{Addrs: []string{*ip}}
	case *name != "":
		req = control.Name{Hostname: name}
	case *quit:
		req = control.Quit{}
	default:
		fmt.Fprintln(os.Stderr, "lnsquery: exactly one of -a, -i, -n, -q is required")
		return 1
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(*port)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnsquery:", err)
		return 1
	}
	defer conn.Close()

	frame, err := control.Encode(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnsquery:", err)
		return 2
	}
	if _, err := conn.Write(frame); err != nil {
		fmt.Fprintln(os.Stderr, "lnsquery:", err)
		return 1
	}

	if _, ok := req.(control.Quit); ok {
		return 0
	}

	reply, err := readFrame(conn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnsquery:", err)
		return 1
	}

	return printReply(reply)
}

func readFrame(r io.Reader) (control.Message, error) {
	header := make([]byte, control.HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	body := make([]byte, control.FrameLen(header))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return control.DecodeBody(body)
}

func printReply(msg control.Message) int {
	switch m := msg.(type) {
	case control.Name:
		if m.Hostname == nil {
			fmt.Println("(unknown)")
			return 1
		}
		fmt.Println(*m.Hostname)
	case control.IP:
		if len(m.Addrs) == 0 {
			fmt.Println("(unknown)")
			return 1
		}
		for _, addr := range m.Addrs {
			fmt.Println(addr)
		}
	case control.NameIPMapping:
		for name, ips := range m.NameIPs {
			fmt.Printf("%s\t%v\n", name, ips)
		}
	default:
		fmt.Fprintf(os.Stderr, "lnsquery: unexpected reply %T\n", msg)
		return 2
	}
	return 0
}
