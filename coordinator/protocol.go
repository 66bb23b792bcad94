package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"shardfs/wire"
)

// HandleRequest parses one control-protocol request line and dispatches it
// to the coordinator, returning the full response line (without trailing
// newline). The leading verb selects a verb-specific remainder parser; every
// path below produces exactly one response, including get_metrics, closing
// the gap the original implementation left open (spec design note 9).
func HandleRequest(c *Coordinator, requestID, line string) string {
	fields := wire.Fields(line)
	if len(fields) == 0 {
		return "error: empty request"
	}
	verb := fields[0]

	switch verb {
	case "register":
		if len(fields) < 2 {
			return "error: insufficient parameters"
		}
		c.Register(fields[1])
		return fmt.Sprintf("DataNode %s registered", fields[1])

	case "heartbeat":
		if len(fields) < 2 {
			return "error: insufficient parameters"
		}
		c.Heartbeat(fields[1])
		return "Heartbeat acknowledged"

	case "get_datanodes":
		nodes := c.GetDataNodes()
		return "datanodes " + strings.Join(nodes, " ")

	case "get_datanode":
		addr, err := c.GetDataNode()
		if err != nil {
			return "no_datanode_available"
		}
		return "datanode " + addr

	case "store_metadata":
		return handleStoreMetadata(c, requestID, line)

	case "get_metadata":
		return handleGetMetadata(c, line)

	case "mkdir":
		parts := wire.SplitPrefix(line, 2)
		if len(parts) < 2 {
			return "mkdir_result False insufficient parameters"
		}
		ok, msg := c.Mkdir(requestID, parts[1])
		return fmt.Sprintf("mkdir_result %t %s", ok, msg)

	case "ls":
		path := "/"
		if parts := wire.SplitPrefix(line, 2); len(parts) > 1 {
			path = parts[1]
		}
		entries, err := c.Ls(path)
		if err != nil {
			return "ls_result error " + shortMessage(err)
		}
		data, _ := json.Marshal(entries)
		return "ls_result success " + string(data)

	case "exists":
		parts := wire.SplitPrefix(line, 2)
		if len(parts) < 2 {
			return "exists_result False"
		}
		exists, _ := c.PathExists(parts[1])
		return fmt.Sprintf("exists_result %t", exists)

	case "delete_file":
		return handleDeleteFile(c, requestID, line)

	case "delete_directory":
		return handleDeleteDirectory(c, requestID, line)

	case "get_metrics":
		m, err := c.Metrics()
		if err != nil {
			return `{"error":"` + shortMessage(err) + `"}`
		}
		data, _ := json.Marshal(m)
		return string(data)

	default:
		return "error: unknown command"
	}
}

func handleStoreMetadata(c *Coordinator, requestID, line string) string {
	fields := wire.Fields(line)
	if len(fields) < 5 {
		return "error: insufficient parameters"
	}
	nblocks, err1 := strconv.Atoi(fields[2])
	bsize, err2 := strconv.ParseInt(fields[3], 10, 64)
	total, err3 := strconv.ParseInt(fields[4], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return "error: malformed numeric field"
	}
	cwd := "/"
	if len(fields) > 5 {
		cwd = fields[5]
	}
	err := c.StoreMetadata(StoreMetadataRequest{
		RequestID: requestID,
		Name:      fields[1],
		NBlocks:   nblocks,
		BlockSize: bsize,
		TotalSize: total,
		Cwd:       cwd,
	})
	if err != nil {
		return "error: " + shortMessage(err)
	}
	return "success"
}

func handleGetMetadata(c *Coordinator, line string) string {
	fields := wire.Fields(line)
	if len(fields) < 2 {
		return "error: insufficient parameters"
	}
	cwd := "/"
	if len(fields) > 2 {
		cwd = fields[2]
	}
	meta, err := c.GetMetadata(fields[1], cwd)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "file_not_found"
		}
		return "error: " + shortMessage(err)
	}
	data, _ := json.Marshal(meta)
	return "metadata " + string(data)
}

func handleDeleteFile(c *Coordinator, requestID, line string) string {
	parts := wire.SplitPrefix(line, 3)
	if len(parts) < 2 {
		return "error: insufficient parameters"
	}
	name := parts[1]
	cwd := "/"
	if len(parts) > 2 {
		cwd = parts[2]
	}
	plan, err := c.DeleteFile(requestID, name, cwd)
	if err != nil {
		return "delete_file_result error " + shortMessage(err)
	}
	data, _ := json.Marshal(plan)
	return "delete_file_result success " + string(data)
}

func handleDeleteDirectory(c *Coordinator, requestID, line string) string {
	parts := wire.SplitPrefix(line, 2)
	if len(parts) < 2 {
		return "delete_directory_result error insufficient parameters"
	}
	result, err := c.DeleteDirectory(requestID, parts[1])
	if err != nil {
		return "delete_directory_result error " + shortMessage(err)
	}
	data, _ := json.Marshal(result)
	return "delete_directory_result success " + string(data)
}

func shortMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", " ")
}
