package frame

import "sync/atomic"

func atomicAdd(addr *int32, delta int32) int32 { return atomic.AddInt32(addr, delta) }
func atomicLoad(addr *int32) int32             { return atomic.LoadInt32(addr) }
