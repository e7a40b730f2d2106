package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleIPOutput = `3: can0: <NOARP,UP,LOWER_UP,ECHO> mtu 16 qdisc pfifo_fast state UP mode DEFAULT group default qlen 10
    link/can  promiscuity 0
    can state ERROR-PASSIVE (berr-counter tx 128 rx 12) restart-ms 100
	  bitrate 500000 sample-point 0.875
	  tq 125 prop-seg 6 phase-seg1 7 phase-seg2 2 sjw 1
    re-started 2 bus-error 17 arbitration-lost 0 error-warning 3 error-passive 1 bus-off 2
    RX: bytes  packets  errors  dropped overrun mcast
    123456     789      4       0       0       0
    TX: bytes  packets  errors  dropped carrier collsns
    654321     987      1       0       0       0
`

func TestParseIPOutput(t *testing.T) {
	health := parseIPOutput(sampleIPOutput)

	assert.Equal(t, "UP", health.State)
	assert.Equal(t, "ERROR-PASSIVE", health.BusState)
	assert.Equal(t, 500000, health.Bitrate)
	assert.Equal(t, 128, health.TXErrorCounter)
	assert.Equal(t, 12, health.RXErrorCounter)
	assert.Equal(t, uint64(4), health.RXErrors)
	assert.Equal(t, uint64(1), health.TXErrors)
	assert.Equal(t, 17, health.BusErrors)
	assert.Equal(t, uint64(2), health.BusOff)
	assert.Equal(t, uint64(3), health.ErrorWarning)
	assert.Equal(t, uint64(1), health.ErrorPassive)
	assert.Equal(t, uint64(2), health.Restarts)
}

func TestBusHealthDegraded(t *testing.T) {
	assert.False(t, BusHealth{BusState: "ERROR-ACTIVE"}.Degraded())
	assert.True(t, BusHealth{BusState: "ERROR-PASSIVE"}.Degraded())
	assert.True(t, BusHealth{BusState: "ERROR-ACTIVE", BusOff: 1}.Degraded())
	assert.False(t, BusHealth{}.Degraded())
}
