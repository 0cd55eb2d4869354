package main

import (
	"banter/server/internal/fileq"
)

// startUploadWorkers spawns the fixed relay pool. Workers run until they
// dequeue a sentinel.
func (s *Server) startUploadWorkers() {
	for i := 0; i < NumUploadWorkers; i++ {
		s.workers.Add(1)
		go s.uploadWorker(i)
	}
}

func (s *Server) uploadWorker(id int) {
	defer s.workers.Done()
	for {
		item, err := s.queue.Dequeue()
		if err != nil {
			return
		}
		if item.Sentinel {
			return
		}
		s.relayFile(item)
	}
}

// relayFile delivers one dequeued file to its target's notification channel.
// The header line and the payload are published as a single frame, which is
// what keeps concurrent whispers from landing between the header and the
// bytes it announces. Ownership of the payload ends here: on any outcome the
// buffer is released to the collector with the item.
func (s *Server) relayFile(item fileq.Item) {
	target, ok := s.registry.Lookup(item.Target)
	if !ok {
		s.stats.filesDropped.Add(1)
		s.sink.Writef("[FILE-QUEUE] Recipient '%s' not found for file '%s' from '%s'. Dropping.",
			item.Target, item.Filename, item.Sender)
		return
	}

	size := item.Size()
	frame := append(formatFileHeader(item.Filename, size, item.Sender), item.Data...)
	if err := target.Notify.Publish(frame); err != nil {
		s.stats.filesDropped.Add(1)
		s.sink.Writef("[FILE-ERROR] Failed sending '%s' to '%s': %v",
			item.Filename, item.Target, err)
		return
	}

	s.stats.filesRelayed.Add(1)
	s.stats.bytesRelayed.Add(uint64(size))
	s.sink.Writef("[SEND FILE] '%s' sent from %s to %s (success).",
		item.Filename, item.Sender, item.Target)
}
