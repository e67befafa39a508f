package main

import "mathchat/cmd/server"

func main() {
	server.NewServer().Run()
}
