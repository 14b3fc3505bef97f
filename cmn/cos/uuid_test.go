/*
 * Copyright (c) 2018-2022, NVIDIA CORPORATION. All rights reserved.
 */
package cos_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ten-framework/ten-runtime-go/cmn/cos"
)

var _ = Describe("GenUUID", func() {
	It("mints distinct, valid ids", func() {
		seen := map[string]bool{}
		for i := 0; i < 256; i++ {
			id := cos.GenUUID()
			Expect(cos.IsValidUUID(id)).To(BeTrue())
			Expect(seen[id]).To(BeFalse())
			seen[id] = true
		}
	})
})

var _ = Describe("Err", func() {
	It("carries its Kind through errors.As", func() {
		err := cos.NewErr(cos.Timeout, "path.expire", "path timeout")
		Expect(cos.KindOf(err)).To(Equal(cos.Timeout))
		Expect(err.Error()).To(ContainSubstring("path timeout"))
	})

	It("defaults a nil error to Generic", func() {
		Expect(cos.KindOf(nil)).To(Equal(cos.Generic))
	})
})
