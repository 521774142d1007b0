// Command kioskd is the auction kiosk daemon.
package main

import "github.com/alanyoungcy/auctionkiosk/internal/cli"

func main() {
	cli.Execute()
}
