// File: port/setup.go
// Author: momentics <momentics@gmail.com>
//
// EAL argument derivation, mempool creation, and the ordered port
// bring-up sequence.

package port

import (
	"fmt"

	"github.com/kbdingest/engine/errs"
	"github.com/kbdingest/engine/kbd"
)

// EALArgs derives the EAL command line from a pre-rendered core mask
// and the global per-node socket-mem CSV. coreMask is a hex mask such as
// numanode.NumaNode.CoreMask() or CpuTopology.CoreMask(); the master lcore
// is always 0. socketMemCSV comes from BuildSocketMemCSV.
func EALArgs(coreMask string, cfg Config, socketMemCSV string) []string {
	args := []string{
		"--lcores=" + coreMask,
		"--master-lcore=0",
	}
	if cfg.UseHugePages {
		args = append(args,
			"--in-memory",
			"--socket-mem="+socketMemCSV,
			"--huge-unlink",
		)
	}
	return args
}

// BuildSocketMemCSV renders the per-node socket-mem csv: this node's quota
// at its index, zero for every node this instance does not use.
func BuildSocketMemCSV(numNodes int, thisNode int, quotaMB uint32) string {
	vals := make([]uint32, numNodes)
	if thisNode >= 0 && thisNode < numNodes {
		vals[thisNode] = quotaMB
	}
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", v)
	}
	return out
}

// CreateMempool creates the per-node mbuf pool. When node < 0 the
// pool is created at socket -1 (the default pool for ports whose NUMA node
// is unknown).
func CreateMempool(dev kbd.Device, node int, cfg Config) (kbd.Mempool, error) {
	dataRoom := cfg.DataRoomSize
	if cfg.JumboFrames && dataRoom < uint16(cfg.MaxRxPktLen+128) {
		dataRoom = uint16(cfg.MaxRxPktLen + 128)
	}

	name := "mbuf_pool_default"
	socketID := -1
	if node >= 0 {
		name = fmt.Sprintf("mbuf_pool_node%d", node)
		socketID = node
	}

	pool, err := dev.MempoolCreate(kbd.MempoolConfig{
		Name:      name,
		NumMbufs:  cfg.NumMbufs,
		CacheSize: cfg.MbufCacheSize,
		DataRoom:  dataRoom,
		SocketID:  socketID,
	})
	if err != nil {
		return 0, errs.New(errs.KindAllocationFailed, "mempool creation returned an error").
			WithContext("node", node).WithContext("cause", err.Error())
	}
	return pool, nil
}

// Configure runs the port bring-up sequence: validate the port id, build
// and apply the device config, set up every RX and TX queue, start the
// device, and enable promiscuous mode if requested. Any step failure
// returns a PortConfigFailed error tagged with the step name; no partial
// state leaks because callers unconditionally Stop/Close every port they
// ever started on shutdown.
func Configure(dev kbd.Device, spec Spec, cfg Config, pool kbd.Mempool) error {
	if !dev.DevIsValidPort(spec.PortID) {
		return errs.Newf(errs.KindPortInvalid, "port %d is not a valid KBD port", spec.PortID).
			WithContext("port_id", spec.PortID)
	}

	devCfg := buildDeviceConfig(spec, cfg)

	if err := dev.DevConfigure(spec.PortID, devCfg); err != nil {
		return errs.PortConfigFailed("dev_configure", err).WithContext("port_id", spec.PortID)
	}

	socketID := -1
	if cfg.NumaLocalAlloc && spec.NumaNode >= 0 {
		socketID = spec.NumaNode
	}

	for q := uint16(0); q < spec.NumRxQueues; q++ {
		if err := dev.RxQueueSetup(spec.PortID, q, uint16(cfg.RxRingSize), socketID, pool); err != nil {
			return errs.PortConfigFailed("rx_queue_setup", err).
				WithContext("port_id", spec.PortID).WithContext("queue_id", q)
		}
	}
	for q := uint16(0); q < spec.NumTxQueues; q++ {
		if err := dev.TxQueueSetup(spec.PortID, q, uint16(cfg.TxRingSize), socketID); err != nil {
			return errs.PortConfigFailed("tx_queue_setup", err).
				WithContext("port_id", spec.PortID).WithContext("queue_id", q)
		}
	}

	if err := dev.DevStart(spec.PortID); err != nil {
		return errs.PortConfigFailed("dev_start", err).WithContext("port_id", spec.PortID)
	}

	if cfg.Promiscuous {
		if err := dev.PromiscEnable(spec.PortID); err != nil {
			return errs.PortConfigFailed("promisc_enable", err).WithContext("port_id", spec.PortID)
		}
	}

	return nil
}

// buildDeviceConfig translates Config + Spec into kbd.DeviceConfig. RSS is
// enabled only when the port has more than one RX queue; scatter is forced
// on whenever jumbo frames or GRO need it.
func buildDeviceConfig(spec Spec, cfg Config) kbd.DeviceConfig {
	enableRSS := cfg.RSSEnable && spec.NumRxQueues > 1

	dc := kbd.DeviceConfig{
		NumRxQueues: spec.NumRxQueues,
		NumTxQueues: spec.NumTxQueues,
		RSSEnable:   enableRSS,
		MQModeRSS:   enableRSS,
	}
	if enableRSS {
		dc.RSSHashFunc = cfg.resolvedRSSHashFn()
		if len(cfg.RSSKey) == 40 {
			dc.RSSKey = cfg.RSSKey
		}
	}

	if cfg.JumboFrames {
		dc.MaxRxPktLen = cfg.MaxRxPktLen
		dc.OffloadScatter = true
	}
	if cfg.HWChecksum {
		dc.OffloadRxCksum = true
		dc.OffloadTxIPCksum = true
		dc.OffloadTxUDPCksum = true
		dc.OffloadTxTCPCksum = true
	}
	if cfg.TSO {
		dc.OffloadTxTCPTSO = true
		dc.OffloadMultiSegs = true
		dc.TSOMaxSegSize = cfg.MaxTSOSegmentSize
	}
	if cfg.UDPTSO {
		dc.OffloadTxUDPTSO = true
		dc.OffloadMultiSegs = true
		dc.TSOMaxSegSize = cfg.MaxTSOSegmentSize
	}
	if cfg.LRO {
		dc.OffloadRxLRO = true
	}
	if cfg.GRO {
		dc.OffloadRxGRO = true
		dc.OffloadScatter = true
	}
	return dc
}
