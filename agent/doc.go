// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent provides the agent contract consumed by the workflow engine.

# Overview

The engine treats agents as opaque: it only needs to execute a named
capability with a parameter map and get a result back. This package defines
that contract, keeps a registry of agents, and decides whether a call is
authorized before it is admitted to the invocation manager.

# Architecture

	┌──────────────────────────────────────────────┐
	│   workflow.Engine (task / parallel nodes)    │
	├──────────────────────────────────────────────┤
	│   Invoker  ──►  Gate.Authorize               │
	│      │                                       │
	│      ▼                                       │
	│   invocation.Manager  ──►  CapabilityTarget  │
	│                               │              │
	│                               ▼              │
	│                         Agent.Execute        │
	└──────────────────────────────────────────────┘

# Core Types

  - Agent: ID, Capabilities, Execute(ctx, capability, params)
  - Result: success flag, data or error message, duration metadata
  - FuncAgent: an Agent assembled from plain functions
  - Registry: agents by id, with change notifications
  - Gate: AllowAll, CapabilityGate (advertised capabilities, cached),
    JWTGate (HS256 token carried by types.WithAuthToken)
  - CapabilityTarget: adapts an agent capability to invocation.Target
  - Invoker: implements workflow.TaskInvoker on top of the manager
*/
package agent
