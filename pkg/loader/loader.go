// Package loader builds a fresh user address space from a compiled ELF
// program image, standing in for original_source's
// kernel/src/proc/loader.rs. Grounded on the same file's load() walk:
// parse, validate class/data/machine/type, then map each PT_LOAD
// segment as its own Memory object and stash the PT_TLS segment (if
// any) as a template to be copied per-thread.
package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"io"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/memfs"
	"github.com/nekos-kernel/nekos/pkg/objects"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

var (
	ErrNotFound      = errors.New("loader: program not found in memfs")
	ErrBadELF        = errors.New("loader: malformed ELF image")
	ErrBadPlatform   = errors.New("loader: ELF class/data/machine mismatch")
	ErrBadABI        = errors.New("loader: ELF is not a static executable")
	ErrDuplicateTLS  = errors.New("loader: more than one PT_TLS segment")
	ErrSegmentLayout = errors.New("loader: PT_LOAD/PT_TLS segment has invalid size/align")
	ErrUnsupportedPH = errors.New("loader: unsupported program header type")
)

// TLSTemplate is the PT_TLS segment's content and shape, copied fresh
// into every thread's TLS block at Thread.Create time.
type TLSTemplate struct {
	Layout  base.MapLayout
	Content []byte
}

// Image is everything Process.Create needs to start a program: the
// fresh address space with every PT_LOAD segment already mapped, the
// entry point, and an optional TLS template.
type Image struct {
	Space *vmm.UserSpace
	Entry base.VAddr
	TLS   *TLSTemplate
}

// Load reads name out of fs, parses it as a riscv64 static ELF
// executable, and maps its loadable segments into a freshly built user
// address space.
func Load(fs memfs.FS, name string) (*Image, error) {
	data, ok := fs.Open(name)
	if !ok {
		return nil, ErrNotFound
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, ErrBadELF
	}
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return nil, ErrBadPlatform
	}
	if f.Machine != elf.Machine(config.ELFMachineRISCV) {
		return nil, ErrBadPlatform
	}
	if f.Type != elf.ET_EXEC {
		return nil, ErrBadABI
	}

	space, err := vmm.NewUserSpace()
	if err != nil {
		return nil, err
	}
	image := &Image{Space: space, Entry: base.VAddr(f.Entry)}

	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			if err := loadSegment(space, prog); err != nil {
				return nil, err
			}
		case elf.PT_TLS:
			if image.TLS != nil {
				return nil, ErrDuplicateTLS
			}
			tls, err := loadTLS(prog)
			if err != nil {
				return nil, err
			}
			image.TLS = tls
		case elf.PT_PHDR, elf.PT_NOTE, elf.PT_GNU_STACK, elf.PT_GNU_RELRO:
			// benign housekeeping headers every normal toolchain emits;
			// neither loaded nor rejected.
		default:
			return nil, ErrUnsupportedPH
		}
	}
	return image, nil
}

func loadSegment(space *vmm.UserSpace, prog *elf.Prog) error {
	layout, ok := base.NewMapLayout(uintptr(prog.Memsz), uintptr(prog.Align))
	if !ok {
		return ErrSegmentLayout
	}
	mem, err := objects.Create(layout)
	if err != nil {
		return err
	}
	permission := base.Permission{
		Read:    prog.Flags&elf.PF_R != 0,
		Write:   prog.Flags&elf.PF_W != 0,
		Execute: prog.Flags&elf.PF_X != 0,
	}
	if err := space.Root().Map(base.VAddr(prog.Vaddr), mem, permission); err != nil {
		return err
	}
	content, err := io.ReadAll(prog.Open())
	if err != nil {
		return ErrBadELF
	}
	return mem.Write(0, content)
}

func loadTLS(prog *elf.Prog) (*TLSTemplate, error) {
	layout, ok := base.NewMapLayout(uintptr(prog.Memsz), uintptr(prog.Align))
	if !ok {
		return nil, ErrSegmentLayout
	}
	content, err := io.ReadAll(prog.Open())
	if err != nil {
		return nil, ErrBadELF
	}
	return &TLSTemplate{Layout: layout, Content: content}, nil
}
