// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

const lineSeparator = "--------------------------------------------------------------------------------------------------------------------------\r\n"

var ledgerOrder = []Kind{KindTask, KindSemaphore, KindMutex, KindMailbox, KindEvent, KindTimer}

// PrintAll prints the registry on the console. v selects how much of each
// ledger is shown: only totals, only entries not deleted or everything.
func (o *OS) PrintAll(v Verbosity, k Kind) error {
	if err := o.firewall(); err != nil {
		return err
	}
	if v < CountOnly || v > Full || k < KindOS || k > KindAll {
		return ErrParams
	}
	switch k {
	case KindOS:
		o.printOS()
	case KindMemory:
		o.printMemory()
	case KindAll:
		o.printOS()
		for _, l := range ledgerOrder {
			o.printLedger(v, l)
		}
		o.printMemory()
	default:
		o.printLedger(v, k)
	}
	return nil
}

func (o *OS) printHeader(k Kind) {
	o.Printf("\r\n%s Statistics:\r\n", k)
	o.Printf(lineSeparator)
}

func (o *OS) printFooter(k Kind, n int) {
	o.Printf(lineSeparator)
	o.Printf("Total %ss created: %d\r\n", k, n)
	o.Printf(lineSeparator)
}

func (o *OS) printOS() {
	h := o.backend.HeapStats()
	o.printHeader(KindOS)
	o.Printf("%-20s %-20s %-20s \r\n", "Total Heap Size", "Free Heap Size", "Heap Water Mark")
	o.Printf(lineSeparator)
	o.Printf("%-20d %-20d %-20d \r\n", h.Total, h.Free, h.MinEverFree)
	o.Printf(lineSeparator)
}

func (o *OS) printMemory() {
	alloc, free := o.reg.MemoryCalls()
	o.printHeader(KindMemory)
	o.Printf("Total Active Memory Locations: %d\r\n", alloc-free)
	o.Printf("Total MemAlloc calls: %d\r\n", alloc)
	o.Printf("Total MemFree calls: %d\r\n", free)
	o.Printf(lineSeparator)
}

// printLedger works on a snapshot, so a concurrent ClearAll cannot pull
// entries out from under it.
func (o *OS) printLedger(v Verbosity, k Kind) {
	entries := o.reg.Entries(k)
	o.printHeader(k)
	if v == CountOnly {
		o.printFooter(k, len(entries))
		return
	}
	o.printColumns(k)
	o.Printf(lineSeparator)
	n := 0
	for _, e := range entries {
		if v == ActiveOnly && e.Status != Active {
			continue
		}
		o.printRow(e)
		n++
	}
	o.printFooter(k, n)
}

func (o *OS) printColumns(k Kind) {
	switch k {
	case KindTask:
		o.Printf("%-30s %-15s %-15s %-20s\r\n", "Task Name", "Status", "Task Priority", "Stack Size (bytes)")
	case KindSemaphore:
		o.Printf("%-30s %-15s %-15s %-15s\r\n", "Semaphore Name", "Status", "Post Count", "Pend Count")
	case KindMutex:
		o.Printf("%-30s %-15s %-15s %-15s\r\n", "Mutex Name", "Status", "Take Count", "Release Count")
	case KindMailbox:
		o.Printf("%-30s %-15s %-15s %-15s %-15s %-15s %-15s\r\n", "Mailbox Name", "Status", "MBox Length", "Item Size", "Rx Count", "Tx Count", "Item Count")
	case KindEvent:
		o.Printf("%-30s %-15s %-15s %-15s\r\n", "Event Flag Name", "Status", "Flag Wait", "Flag Set")
	case KindTimer:
		o.Printf("%-30s %-15s %-15s %-15s %-15s\r\n", "Timer Name", "Status", "Type", "Duration (ms)", "Run Count")
	}
}

func (o *OS) printRow(e Entry) {
	switch e.Kind {
	case KindTask:
		o.Printf("%-30s %-15s %-15d %-20d\r\n", e.Name, e.Status, e.Priority, e.StackBytes)
	case KindSemaphore:
		o.Printf("%-30s %-15s %-15d %-15d \r\n", e.Name, e.Status, e.PostCount, e.PendCount)
	case KindMutex:
		o.Printf("%-30s %-15s %-15d %-15d \r\n", e.Name, e.Status, e.TakeCount, e.ReleaseCount)
	case KindMailbox:
		o.Printf("%-30s %-15s %-15d %-15d %-15d %-15d %-15d\r\n", e.Name, e.Status, e.Length, e.ItemSize, e.RxCount, e.TxCount, e.ItemCount)
	case KindEvent:
		o.Printf("%-30s %-15s %-15d %-15d \r\n", e.Name, e.Status, e.FlagWait, e.FlagSet)
	case KindTimer:
		o.Printf("%-30s %-15s %-15s %-15d %-15d \r\n", e.Name, e.Status, e.TimerKind, e.DurationMs, e.RunCount)
	}
}
