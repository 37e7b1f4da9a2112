package main

import (
	"go-media-downloader/cmd/media-downloader/cmd"
)

func main() {
	cmd.Execute()
}
