// Package riscv drives the RISC-V debug module standard over the NFP's
// XPB explicit-BAR path: RFPC core identity, halt/resume, abstract
// commands, and program-buffer-based memory access (spec component C8).
package riscv

import (
	"fmt"

	"github.com/nfp-tools/cpp-tools/cppbus"
)

// Reg is a register handle: either a general-purpose register or a
// control/status register, each with a reg_addr in the debug module's
// abstract-command register-number space.
type Reg interface {
	fmt.Stringer
	RegAddr() uint64
}

// Gpr is one of the 32 RISC-V integer general-purpose registers.
type Gpr int

const (
	X0 Gpr = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	X31
)

// RegAddr returns the GPR's abstract-command register number.
func (g Gpr) RegAddr() uint64 { return 0x1000 + uint64(g) }

func (g Gpr) String() string { return fmt.Sprintf("x%d", int(g)) }

// Csr is one of the control/status registers this driver names.
type Csr int

const (
	Mstatus Csr = iota
	Misa
	Medeleg
	Mideleg
	Mie
	Mtvec
	Mscratch
	Mepc
	Mcause
	Mtval
	Mip
	Dcsr
	Dpc
	Dscratch0
	Dscratch1
	Mlmemprot
	Mafstatus
	Mcycle
	Minstret
	Cycle
	Time
	Instret
	Mvendorid
	Marchid
	Mimpid
	Mhartid
)

var csrAddrs = map[Csr]uint64{
	Mstatus: 0x300, Misa: 0x301, Medeleg: 0x302, Mideleg: 0x303, Mie: 0x304,
	Mtvec: 0x305, Mscratch: 0x340, Mepc: 0x341, Mcause: 0x342, Mtval: 0x343,
	Mip: 0x344, Dcsr: 0x7b0, Dpc: 0x7b1, Dscratch0: 0x7b2, Dscratch1: 0x7b3,
	Mlmemprot: 0x7c0, Mafstatus: 0x7c1, Mcycle: 0xb00, Minstret: 0xb02,
	Cycle: 0xc00, Time: 0xc01, Instret: 0xc02, Mvendorid: 0xf11,
	Marchid: 0xf12, Mimpid: 0xf13, Mhartid: 0xf14,
}

var csrNames = map[Csr]string{
	Mstatus: "mstatus", Misa: "misa", Medeleg: "medeleg", Mideleg: "mideleg",
	Mie: "mie", Mtvec: "mtvec", Mscratch: "mscratch", Mepc: "mepc",
	Mcause: "mcause", Mtval: "mtval", Mip: "mip", Dcsr: "dcsr", Dpc: "dpc",
	Dscratch0: "dscratch0", Dscratch1: "dscratch1", Mlmemprot: "mlmemport",
	Mafstatus: "mafstatus", Mcycle: "mcycle", Minstret: "minstret",
	Cycle: "cycle", Time: "time", Instret: "instret", Mvendorid: "mvendorid",
	Marchid: "marchid", Mimpid: "mimpid", Mhartid: "mhartid",
}

// RegAddr returns the CSR's abstract-command register number.
func (c Csr) RegAddr() uint64 { return csrAddrs[c] }

func (c Csr) String() string { return csrNames[c] }

// ParseCsr maps a CLI-facing CSR name (as rendered by Csr.String) back
// to its Csr value.
func ParseCsr(name string) (Csr, error) {
	for csr, n := range csrNames {
		if n == name {
			return csr, nil
		}
	}
	return 0, fmt.Errorf("unknown CSR %q", name)
}

// ParseGpr maps a GPR index in [0,32) to its Gpr value.
func ParseGpr(index int) (Gpr, error) {
	if index < 0 || index > int(X31) {
		return 0, fmt.Errorf("GPR index out of range: %d", index)
	}
	return Gpr(index), nil
}

// Rfpc identifies a single RISC-V core by its (island, cluster, group,
// core) coordinates, with XPB addressing and debug-module hart selection
// values derived from them.
type Rfpc struct {
	Island  cppbus.Island
	Cluster uint8
	Group   uint8
	Core    uint8
}

// New builds an Rfpc, validating the cluster/group/core ranges.
func New(island cppbus.Island, cluster, group, core uint8) (*Rfpc, error) {
	if cluster > 2 {
		return nil, fmt.Errorf("cluster number out of range: %d", cluster)
	}
	if group > 3 {
		return nil, fmt.Errorf("group number out of range: %d", group)
	}
	if core > 7 {
		return nil, fmt.Errorf("core number out of range: %d", core)
	}
	return &Rfpc{Island: island, Cluster: cluster, Group: group, Core: core}, nil
}

// FromIslandGroupCore builds an Rfpc from a flat group index (0-11),
// splitting it into cluster (group/4) and group within the cluster
// (group%4).
func FromIslandGroupCore(island cppbus.Island, group, core uint8) *Rfpc {
	return &Rfpc{Island: island, Cluster: group / 4, Group: group % 4, Core: core}
}

// DmXpbBase returns the per-cluster XPB base address of the debug module.
func (r *Rfpc) DmXpbBase() (uint32, error) {
	switch r.Cluster {
	case 0:
		return 0x240000, nil
	case 1:
		return 0x320000, nil
	case 2:
		return 0x400000, nil
	default:
		return 0, fmt.Errorf("invalid cluster %d", r.Cluster)
	}
}

// GroupCtlXpbBase returns the (cluster, group) XPB base offsets for the
// group-control registers.
func (r *Rfpc) GroupCtlXpbBase() (cluster, group uint32, err error) {
	switch r.Cluster {
	case 0:
		cluster = 0x280000
	case 1:
		cluster = 0x360000
	case 2:
		cluster = 0x440000
	default:
		return 0, 0, fmt.Errorf("invalid cluster ID %d", r.Cluster)
	}

	switch r.Group {
	case 0:
		group = 0x000
	case 1:
		group = 0x080
	case 2:
		group = 0x100
	case 3:
		group = 0x180
	default:
		return 0, 0, fmt.Errorf("invalid group ID %d", r.Group)
	}
	return cluster, group, nil
}

// DmHartsel returns the debug module's hartsel value split into its
// lo/hi halves.
func (r *Rfpc) DmHartsel() (hartsello, hartselhi uint32) {
	hartsel := 8*uint32(r.Group) + uint32(r.Core)
	return hartsel & 0x3FF, (hartsel >> 10) & 0x3FF
}

// ImbPort returns the core's IMB port index.
func (r *Rfpc) ImbPort() (uint8, error) {
	switch r.Cluster {
	case 0:
		switch r.Group {
		case 0, 1:
			return 4, nil
		case 2, 3:
			return 7, nil
		}
	case 1:
		switch r.Group {
		case 0, 1:
			return 8, nil
		case 2, 3:
			return 11, nil
		}
	case 2:
		switch r.Group {
		case 0, 1:
			return 12, nil
		case 2, 3:
			return 13, nil
		}
	}
	return 0, fmt.Errorf("invalid cluster/group %d/%d", r.Cluster, r.Group)
}

// CppCoreNum returns the core's CPP core number.
func (r *Rfpc) CppCoreNum() uint8 {
	return uint8((8*int(r.Group) + int(r.Core)) % 16)
}

// String renders the Rfpc as "i<island>.cl<cluster>.g<group>.c<core>".
func (r *Rfpc) String() string {
	return fmt.Sprintf("i%s.cl%d.g%d.c%d", r.Island, r.Cluster, r.Group, r.Core)
}

// Equal reports whether two Rfpc identities name the same core.
func (r *Rfpc) Equal(o *Rfpc) bool {
	return r.Island == o.Island && r.Cluster == o.Cluster && r.Group == o.Group && r.Core == o.Core
}

// HolderFromMetadataFields decodes the virtual terminal's raw group field
// (as stored in a VtmMetadata word) into cluster/group.
func HolderFromMetadataFields(island cppbus.Island, rawGroup, core uint8) *Rfpc {
	group := rawGroup % 4
	cluster := rawGroup / 4
	return &Rfpc{Island: island, Cluster: cluster, Group: group, Core: core}
}
