package instance_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

var _ = Describe("Instance task reduction", func() {
	now := time.Unix(1700000000, 0)
	runSpecId := pathid.MustParse("/web")

	newId := func() instance.Id {
		id, err := instance.NewId(runSpecId, instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	It("starts Scheduled with goal Running", func() {
		inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
		Expect(inst.State.Condition).To(Equal(instance.Scheduled))
		Expect(inst.State.Goal).To(Equal(instance.Running))
		Expect(inst.IsScheduled()).To(BeTrue())
	})

	It("reduces to the most severe condition across multiple tasks", func() {
		inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
		later := now.Add(time.Second)
		inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now}, later)
		inst = inst.ApplyTaskUpdate(instance.Task{Id: "t2", Condition: instance.Failed}, later)
		Expect(inst.State.Condition).To(Equal(instance.Failed))
	})

	It("keeps the prior Since timestamp when condition and health are unchanged", func() {
		inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
		t1 := now.Add(time.Second)
		inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now}, t1)
		sinceAfterFirst := inst.State.Since

		t2 := t1.Add(time.Second)
		inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now}, t2)
		Expect(inst.State.Since).To(Equal(sinceAfterFirst))
	})

	It("advances Since when the reduced condition changes", func() {
		inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
		t1 := now.Add(time.Second)
		inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Staging}, t1)

		t2 := t1.Add(time.Second)
		inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &t2}, t2)
		Expect(inst.State.Since).To(Equal(t2))
	})

	Describe("the unreachable-inactive latch", func() {
		spec := runspec.RunSpec{Unreachable: runspec.UnreachableStrategy{Enabled: true, InactiveAfter: time.Minute}}

		It("stays merely Unreachable before the inactivity window elapses", func() {
			inst := instance.NewScheduled(newId(), spec, "", now)
			unreachableSince := now
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Unreachable, UnreachableSince: &unreachableSince}, now.Add(30*time.Second))
			Expect(inst.State.Condition).To(Equal(instance.Unreachable))
		})

		It("promotes to UnreachableInactive once past the inactivity window", func() {
			inst := instance.NewScheduled(newId(), spec, "", now)
			unreachableSince := now
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Unreachable, UnreachableSince: &unreachableSince}, now.Add(2*time.Minute))
			Expect(inst.State.Condition).To(Equal(instance.UnreachableInactive))
		})

		It("keeps the latch pinned even after the task reports Running again", func() {
			inst := instance.NewScheduled(newId(), spec, "", now)
			unreachableSince := now
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Unreachable, UnreachableSince: &unreachableSince}, now.Add(2*time.Minute))
			Expect(inst.State.Condition).To(Equal(instance.UnreachableInactive))

			recovered := now.Add(3 * time.Minute)
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &recovered}, recovered)
			Expect(inst.State.Condition).To(Equal(instance.UnreachableInactive))
		})

		It("clears only on Reschedule", func() {
			inst := instance.NewScheduled(newId(), spec, "", now)
			unreachableSince := now
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Unreachable, UnreachableSince: &unreachableSince}, now.Add(2*time.Minute))
			Expect(inst.State.Condition).To(Equal(instance.UnreachableInactive))

			rescheduled := now.Add(3 * time.Minute)
			inst = inst.Reschedule(rescheduled)
			Expect(inst.State.Condition).NotTo(Equal(instance.UnreachableInactive))
		})
	})

	Describe("IsExpungeable", func() {
		It("is false for a goal that is not Decommissioned", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			Expect(inst.IsExpungeable()).To(BeFalse())
		})

		It("is true once Decommissioned with no task history", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			inst = inst.SetGoal(instance.Decommissioned, instance.ReasonOrphaned)
			Expect(inst.IsExpungeable()).To(BeTrue())
			Expect(inst.DecommissionReason).To(Equal(instance.ReasonOrphaned))
		})

		It("is false while Decommissioned with a non-terminal task", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now}, now)
			inst = inst.SetGoal(instance.Decommissioned, instance.ReasonOrphaned)
			Expect(inst.IsExpungeable()).To(BeFalse())
		})

		It("is true once Decommissioned and every task is terminal", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Killed}, now)
			inst = inst.SetGoal(instance.Decommissioned, instance.ReasonOrphaned)
			Expect(inst.IsExpungeable()).To(BeTrue())
		})

		It("clears DecommissionReason when the goal moves back off Decommissioned", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			inst = inst.SetGoal(instance.Decommissioned, instance.ReasonOrphaned)
			inst = inst.SetGoal(instance.Running, instance.ReasonNone)
			Expect(inst.DecommissionReason).To(Equal(instance.ReasonNone))
		})
	})

	Describe("Provision", func() {
		it := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)

		It("transitions Scheduled to Provisioned, binding agent and tasks", func() {
			agent := instance.AgentInfo{AgentId: "agent-1"}
			tasks := map[string]instance.Task{"t1": {Id: "t1", Condition: instance.Staging}}
			got, err := it.Provision(agent, tasks, now.Add(time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State.Condition).To(Equal(instance.Provisioned))
			Expect(got.AgentInfo).NotTo(BeNil())
			Expect(got.TasksMap).To(HaveKey("t1"))
		})

		It("rejects provisioning an instance whose goal is not Running", func() {
			stopped := it.SetGoal(instance.Stopped, instance.ReasonNone)
			_, err := stopped.Provision(instance.AgentInfo{}, nil, now)
			Expect(err).To(HaveOccurred())
		})

		It("rejects provisioning an instance that isn't Scheduled", func() {
			provisioned, err := it.Provision(instance.AgentInfo{}, nil, now)
			Expect(err).NotTo(HaveOccurred())
			_, err = provisioned.Provision(instance.AgentInfo{}, nil, now)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("aggregated health", func() {
		It("is unknown with no tasks past Provisioned", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Staging}, now)
			Expect(inst.State.Healthy).To(BeNil())
		})

		It("is unhealthy if any running task reports unhealthy", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			unhealthy := false
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now, Healthy: &unhealthy}, now)
			Expect(inst.State.Healthy).NotTo(BeNil())
			Expect(*inst.State.Healthy).To(BeFalse())
		})

		It("is healthy once every running task reports healthy", func() {
			inst := instance.NewScheduled(newId(), runspec.RunSpec{}, "", now)
			healthy := true
			inst = inst.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now, Healthy: &healthy}, now)
			Expect(inst.State.Healthy).NotTo(BeNil())
			Expect(*inst.State.Healthy).To(BeTrue())
		})
	})
})
