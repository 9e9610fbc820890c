package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/paleotronic/a2storage/disk"
)

const MAXVOL = 8

var commandList map[string]*shellCommand
var commandVolumes [MAXVOL]*volume
var commandTarget int = -1
var commandPath [MAXVOL]string

func mountVolume(v *volume) (int, error) {
	var fr []int
	for i, d := range commandVolumes {
		if d == nil {
			fr = append(fr, i)
		} else if v.path == d.path {
			return i, nil
		}
	}
	if len(fr) == 0 {
		return -1, errors.New("No free slots")
	}
	commandVolumes[fr[0]] = v
	return fr[0], nil
}

func getPrompt(wp [MAXVOL]string, t int) string {
	if t == -1 || commandVolumes[t] == nil {
		return "a2:<no mount>> "
	}
	return fmt.Sprintf("a2:%d:%s:/%s> ", t, filepath.Base(commandVolumes[t].path), wp[t])
}

type shellCommand struct {
	Name             string
	Description      string
	MinArgs, MaxArgs int
	Code             func(args []string) int
	NeedsMount       bool
	Context          shellCommandContext
	Text             []string
}

type shellCommandContext int

const (
	sccNone shellCommandContext = 1 << iota
	sccLocal
	sccDiskFile
	sccCommand
)

type shellCompleter struct {
}

func hasPrefix(str []rune, prefix []rune) bool {
	if len(prefix) > len(str) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if str[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (sc *shellCompleter) Do(line []rune, pos int) ([][]rune, int) {
	prefix := ""
	chunk := ""
	for _, ch := range line {
		if ch == ' ' {
			prefix = chunk
			break
		}
		chunk += string(ch)
	}

	chunk = ""
	cprefix := ""
	var lastEscape bool
	for i := 0; i < pos; i++ {
		ch := line[i]
		switch {
		case ch == '\\':
			lastEscape = true
		case ch == ' ' && !lastEscape:
			chunk = ""
			lastEscape = false
		default:
			chunk += string(ch)
			lastEscape = false
		}
	}
	cprefix = chunk

	context := sccCommand
	if cmd, ok := commandList[prefix]; ok {
		context = cmd.Context
	}

	var items [][]rune
	switch context {
	case sccCommand:
		for k := range commandList {
			items = append(items, []rune(k))
		}
	case sccDiskFile:
		if commandTarget == -1 || commandVolumes[commandTarget] == nil {
			return nil, 0
		}
		_, files, err := resolveDir(commandVolumes[commandTarget].disk, commandPath[commandTarget])
		if err != nil {
			return nil, 0
		}
		for _, f := range files {
			if !f.IsDeleted() {
				items = append(items, []rune(strings.TrimSpace(f.Filename())))
			}
		}
	case sccLocal:
		files, err := filepath.Glob(cprefix + "*")
		if err != nil {
			return nil, 0
		}
		for _, v := range files {
			items = append(items, []rune(v))
		}
	}

	var filt [][]rune
	for _, v := range items {
		if hasPrefix(v, []rune(cprefix)) {
			filt = append(filt, shellEscape(v[len(cprefix):]))
		}
	}
	return filt, len(cprefix)
}

func shellEscape(str []rune) []rune {
	out := make([]rune, 0, len(str))
	for _, v := range str {
		if v == ' ' {
			out = append(out, '\\')
		}
		out = append(out, v)
	}
	return out
}

func init() {
	commandList = map[string]*shellCommand{
		"mount": {
			Name:        "mount",
			Description: "Mount a disk image",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellMount,
			Context:     sccLocal,
			Text: []string{
				"mount <diskfile>",
				"",
				"Mounts disk and switches to the new slot",
			},
		},
		"unmount": {
			Name:        "unmount",
			Description: "Unmount the current disk",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellUnmount,
			NeedsMount:  true,
			Context:     sccNone,
		},
		"target": {
			Name:        "target",
			Description: "Select a mounted slot",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellTarget,
			Context:     sccNone,
			Text: []string{
				"target <slot>",
				"",
				"Makes another mounted disk the current one. See 'disks'.",
			},
		},
		"disks": {
			Name:        "disks",
			Description: "List mounted disks",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellDisks,
			Context:     sccNone,
		},
		"info": {
			Name:        "info",
			Description: "Information about the current disk",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellInfo,
			NeedsMount:  true,
			Context:     sccNone,
		},
		"cat": {
			Name:        "cat",
			Description: "List files in the current directory",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellCat,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"cat [standard|native|detail]",
			},
		},
		"bitmap": {
			Name:        "bitmap",
			Description: "Draw the free space map",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellBitmap,
			NeedsMount:  true,
			Context:     sccNone,
		},
		"cd": {
			Name:        "cd",
			Description: "Change directory",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellCd,
			NeedsMount:  true,
			Context:     sccDiskFile,
			Text: []string{
				"cd <directory>",
				"",
				"Use .. for the parent and / for the volume directory.",
			},
		},
		"mkdir": {
			Name:        "mkdir",
			Description: "Create a directory",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellMkdir,
			NeedsMount:  true,
			Context:     sccNone,
		},
		"extract": {
			Name:        "extract",
			Description: "Copy a file from the disk",
			MinArgs:     1,
			MaxArgs:     2,
			Code:        shellExtract,
			NeedsMount:  true,
			Context:     sccDiskFile,
			Text: []string{
				"extract <file> [local file]",
			},
		},
		"put": {
			Name:        "put",
			Description: "Copy a local file to the disk",
			MinArgs:     1,
			MaxArgs:     3,
			Code:        shellPut,
			NeedsMount:  true,
			Context:     sccLocal,
			Text: []string{
				"put <local file> [type] [address]",
				"",
				"A name of the form NAME#0x0803 sets the load address.",
			},
		},
		"delete": {
			Name:        "delete",
			Description: "Delete a file",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellDelete,
			NeedsMount:  true,
			Context:     sccDiskFile,
		},
		"lock": {
			Name:        "lock",
			Description: "Lock a file",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        func(args []string) int { return shellLock(args, true) },
			NeedsMount:  true,
			Context:     sccDiskFile,
		},
		"unlock": {
			Name:        "unlock",
			Description: "Unlock a file",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        func(args []string) int { return shellLock(args, false) },
			NeedsMount:  true,
			Context:     sccDiskFile,
		},
		"rename": {
			Name:        "rename",
			Description: "Rename a file",
			MinArgs:     2,
			MaxArgs:     2,
			Code:        shellRename,
			NeedsMount:  true,
			Context:     sccDiskFile,
		},
		"type": {
			Name:        "type",
			Description: "Change the type of a file",
			MinArgs:     1,
			MaxArgs:     2,
			Code:        shellType,
			NeedsMount:  true,
			Context:     sccDiskFile,
			Text: []string{
				"type <file> <type>",
				"type <file>",
				"",
				"Without a type, lists the types the disk accepts.",
			},
		},
		"dump": {
			Name:        "dump",
			Description: "Hex dump a sector or block",
			MinArgs:     1,
			MaxArgs:     2,
			Code:        shellDump,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"dump <track> <sector>",
				"dump <block>",
			},
		},
		"help": {
			Name:        "help",
			Description: "Shows this help",
			MinArgs:     -1,
			MaxArgs:     1,
			Code:        shellHelp,
			Context:     sccCommand,
		},
		"quit": {
			Name:        "quit",
			Description: "Leave this place",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellQuit,
			Context:     sccNone,
		},
	}
}

func smartSplit(line string) (string, []string) {
	var out []string

	var inqq bool
	var lastEscape bool
	var chunk string

	add := func() {
		if chunk != "" {
			out = append(out, chunk)
			chunk = ""
		}
	}

	for _, ch := range line {
		switch {
		case ch == '"':
			inqq = !inqq
			add()
		case ch == ' ':
			if inqq || lastEscape {
				chunk += string(ch)
			} else {
				add()
			}
			lastEscape = false
		case ch == '\\' && !inqq:
			lastEscape = true
		default:
			chunk += string(ch)
			lastEscape = false
		}
	}

	add()

	if len(out) == 0 {
		return "", out
	}

	return out[0], out[1:]
}

func shellProcess(line string) int {
	line = strings.TrimSpace(line)

	verb, args := smartSplit(line)
	if verb == "" {
		return 0
	}

	verb = strings.ToLower(verb)
	command, ok := commandList[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unrecognized command: %s\n", verb)
		return -1
	}

	if command.MinArgs != -1 && len(args) < command.MinArgs {
		fmt.Fprintf(os.Stderr, "%s expects at least %d arguments\n", verb, command.MinArgs)
		return -1
	}
	if command.MaxArgs != -1 && len(args) > command.MaxArgs {
		fmt.Fprintf(os.Stderr, "%s expects at most %d arguments\n", verb, command.MaxArgs)
		return -1
	}
	if command.NeedsMount && (commandTarget == -1 || commandVolumes[commandTarget] == nil) {
		fmt.Fprintf(os.Stderr, "%s only works on mounted disks\n", verb)
		return -1
	}

	return command.Code(args)
}

func shellDo() error {
	if err := os.MkdirAll(binpath(), 0755); err != nil {
		logger.Errorf("cannot create %s: %v", binpath(), err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       getPrompt(commandPath, commandTarget),
		HistoryFile:  filepath.Join(binpath(), ".shell_history"),
		AutoComplete: &shellCompleter{},
	})
	if err != nil {
		return errors.WithStack(err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		if shellProcess(line) == 999 {
			break
		}
		rl.SetPrompt(getPrompt(commandPath, commandTarget))
	}
	return nil
}

func shellError(err error) int {
	fmt.Fprintln(os.Stderr, err)
	logger.Errorf("%v", err)
	return -1
}

func current() *volume {
	return commandVolumes[commandTarget]
}

// diskPath joins a name to the current directory unless it is absolute.
func diskPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return strings.Trim(name, "/")
	}
	return strings.Trim(path.Join(commandPath[commandTarget], name), "/")
}

func saveCurrent() int {
	if err := current().Save(); err != nil {
		return shellError(err)
	}
	return 0
}

func shellMount(args []string) int {
	v, err := openVolume(args[0])
	if err != nil {
		return shellError(err)
	}
	slot, err := mountVolume(v)
	if err != nil {
		return shellError(err)
	}
	commandTarget = slot
	commandPath[slot] = ""
	fmt.Printf("Mounted %s (%s) in slot %d\n", v.disk.DiskName(), v.disk.FormatName(), slot)
	return 0
}

func shellUnmount(args []string) int {
	commandVolumes[commandTarget] = nil
	commandPath[commandTarget] = ""
	commandTarget = -1
	for i, v := range commandVolumes {
		if v != nil {
			commandTarget = i
			break
		}
	}
	return 0
}

func shellTarget(args []string) int {
	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 0 || slot >= MAXVOL || commandVolumes[slot] == nil {
		fmt.Fprintf(os.Stderr, "Nothing mounted in slot %s\n", args[0])
		return -1
	}
	commandTarget = slot
	return 0
}

func shellDisks(args []string) int {
	for i, v := range commandVolumes {
		if v == nil {
			continue
		}
		mark := " "
		if i == commandTarget {
			mark = "*"
		}
		fmt.Printf("%s %d  %-24s %-10s %s\n", mark, i, v.disk.DiskName(), v.disk.FormatName(), v.path)
	}
	return 0
}

func shellHelp(args []string) int {
	if len(args) == 0 {
		keys := make([]string, 0, len(commandList))
		for k := range commandList {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			info := commandList[k]
			fmt.Printf("%-10s %s\n", info.Name, info.Description)
		}
		return 0
	}

	command := strings.ToLower(args[0])
	details, ok := commandList[command]
	if !ok || details.Text == nil {
		fmt.Fprintln(os.Stderr, "No help available for "+command)
		return -1
	}
	for _, l := range details.Text {
		fmt.Println(l)
	}
	return 0
}

func shellQuit(args []string) int {
	return 999
}

func shellInfo(args []string) int {
	printInfo(os.Stdout, current().disk)
	return 0
}

func shellCat(args []string) int {
	mode := disk.DisplayStandard
	if len(args) == 1 {
		m, err := parseMode(args[0])
		if err != nil {
			return shellError(err)
		}
		mode = m
	}
	if commandPath[commandTarget] == "" {
		if err := printCatalog(os.Stdout, current().disk, mode, false); err != nil {
			return shellError(err)
		}
		return 0
	}

	fd := current().disk
	_, files, err := resolveDir(fd, commandPath[commandTarget])
	if err != nil {
		return shellError(err)
	}
	fmt.Printf("%s/%s\n\n", fd.DiskName(), commandPath[commandTarget])
	for _, f := range files {
		if f.IsDeleted() {
			continue
		}
		fmt.Println(strings.Join(f.FileColumnData(mode), "  "))
	}
	return 0
}

func shellBitmap(args []string) int {
	printBitmap(os.Stdout, current().disk)
	return 0
}

func shellCd(args []string) int {
	fd := current().disk
	if !fd.CanHaveDirectories() {
		fmt.Fprintf(os.Stderr, "%s has no directories\n", fd.FormatName())
		return -1
	}
	target := diskPath(args[0])
	if target == "." {
		target = ""
	}
	if _, _, err := resolveDir(fd, target); err != nil {
		return shellError(err)
	}
	commandPath[commandTarget] = target
	return 0
}

func shellMkdir(args []string) int {
	if _, err := makeDirectory(current().disk, diskPath(args[0])); err != nil {
		return shellError(err)
	}
	return saveCurrent()
}

func shellExtract(args []string) int {
	entry, data, err := extractFile(current().disk, diskPath(args[0]), false)
	if err != nil {
		return shellError(err)
	}
	local := strings.TrimSpace(entry.Filename())
	if entry.NeedsAddress() {
		local = fmt.Sprintf("%s#0x%04x", local, entry.Address())
	}
	if len(args) == 2 {
		local = args[1]
	}
	if err := os.WriteFile(local, data, 0644); err != nil {
		return shellError(errors.WithStack(err))
	}
	fmt.Printf("Extracted %s to %s (%s)\n", entry.Filename(), local, humanize.IBytes(uint64(len(data))))
	return 0
}

// splitAddress pulls a NAME#0x0803 style load address off a local filename.
func splitAddress(name string) (string, string) {
	if i := strings.LastIndex(name, "#"); i > 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

func shellPut(args []string) int {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return shellError(errors.WithStack(err))
	}
	name, addr := splitAddress(filepath.Base(args[0]))
	filetype := ""
	if len(args) > 1 {
		filetype = args[1]
	}
	if len(args) > 2 {
		addr = args[2]
	}
	address, err := parseAddress(addr)
	if err != nil {
		return shellError(err)
	}
	entry, err := putFile(current().disk, diskPath(name), filetype, address, data)
	if err != nil {
		return shellError(err)
	}
	fmt.Printf("Stored %s as %s (%s)\n", args[0], entry.Filename(), entry.Filetype())
	return saveCurrent()
}

func shellDelete(args []string) int {
	if err := deleteFile(current().disk, diskPath(args[0])); err != nil {
		return shellError(err)
	}
	return saveCurrent()
}

func shellLock(args []string, locked bool) int {
	if err := lockFile(current().disk, diskPath(args[0]), locked); err != nil {
		return shellError(err)
	}
	return saveCurrent()
}

func shellRename(args []string) int {
	fd := current().disk
	entry, err := findEntry(fd, diskPath(args[0]))
	if err != nil {
		return shellError(err)
	}
	if err := entry.SetFilename(fd.SuggestedFilename(args[1])); err != nil {
		return shellError(err)
	}
	return saveCurrent()
}

func shellType(args []string) int {
	fd := current().disk
	if len(args) == 1 {
		entry, err := findEntry(fd, diskPath(args[0]))
		if err != nil {
			return shellError(err)
		}
		fmt.Printf("%s is %s; disk accepts %s\n", entry.Filename(), entry.Filetype(), strings.Join(fd.Filetypes(), " "))
		return 0
	}
	entry, err := findEntry(fd, diskPath(args[0]))
	if err != nil {
		return shellError(err)
	}
	if err := entry.SetFiletype(args[1]); err != nil {
		return shellError(err)
	}
	return saveCurrent()
}

func shellDump(args []string) int {
	img := current().disk.Image()
	nums := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid number '%s'\n", a)
			return -1
		}
		nums[i] = n
	}
	var data []byte
	var err error
	if len(nums) == 2 {
		data, err = img.ReadSector(nums[0], nums[1])
	} else {
		data, err = img.ReadBlock(nums[0])
	}
	if err != nil {
		return shellError(err)
	}
	disk.Dump(os.Stdout, data)
	return 0
}
