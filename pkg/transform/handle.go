package transform

import "github.com/rmax-ai/gfs/pkg/feature"

// Handle is a node's id plus a non-owning reference to the context that
// owns the node. Every node embeds one. Using a handle after its context
// was discarded panics.
type Handle struct {
	id  int
	ctx *Context
}

// ID returns the node id, unique within the owning context.
func (h Handle) ID() int {
	return h.id
}

// Context returns the owning context.
func (h Handle) Context() *Context {
	return h.context()
}

func (h Handle) handle() Handle {
	return h
}

func (h Handle) context() *Context {
	if h.ctx == nil || h.ctx.discarded {
		panic(discardedPanic)
	}
	return h.ctx
}

// mustLive panics if the owning context is gone.
func (h Handle) mustLive() {
	h.context()
}

// derive allocates a fresh id in the same context for a child node.
func (h Handle) derive() Handle {
	c := h.context()
	return Handle{id: c.NextID(), ctx: c}
}

// registerSelf appends n to the owning context's node list.
func (h Handle) registerSelf(n Node) {
	h.context().AddNode(n)
}

// owningTransformationID is the id of the context's in-progress
// transformation, used to stamp derived resources before finalize.
func (h Handle) owningTransformationID() feature.ResourceID {
	return h.context().CurrentTransformation().ResourceID()
}

// recordExport appends (nodeID, id) to the in-progress transformation.
func (h Handle) recordExport(nodeID int, id feature.ResourceID) {
	t := h.context().CurrentTransformation()
	t.ExportResources = append(t.ExportResources, feature.Export{NodeID: nodeID, ResourceID: id})
}
