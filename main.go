package main

import "qnabot/cmd"

func main() {
	cmd.Execute()
}
