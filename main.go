package main

import (
	"log"

	"github.com/zhoupc/wechat-file-manager/cmd/wfm"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	wfm.Execute()
}
