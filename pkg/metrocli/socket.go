package metrocli

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/energylab/metronom/common"
)

var dialFunc = func(network, address string) (net.Conn, error) {
	return net.DialTimeout(network, address, common.DefaultDialTimeout)
}

func tcpPort() int {
	if port := os.Getenv(common.TCPPortEnv); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p >= 1 && p <= 65535 {
			return p
		}
		debugLog("invalid TCP port %q, using default %d", port, common.DefaultTCPPort)
	}
	return common.DefaultTCPPort
}

func forceTCP() bool {
	v := os.Getenv(common.ForceTCPEnv)
	return v == "1" || v == "true"
}

func debugMode() bool {
	return os.Getenv(common.DebugEnv) == "1"
}

func tcpAddress() string {
	return fmt.Sprintf("%s:%d", common.TCPHost, tcpPort())
}

func debugLog(format string, args ...any) {
	if debugMode() {
		log.Printf(format, args...)
	}
}
