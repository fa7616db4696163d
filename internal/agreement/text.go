package agreement

const (
	// ChineseTitle heads the official agreement text.
	ChineseTitle = "许可协议（中文版）"
	// EnglishTitle heads the reference translation.
	EnglishTitle = "License Agreement (English Version - For Reference Only)"

	noticeHeading = "重要法律提示"
	noticeLead    = "本软件的重点限制包括："
)

var noticeItems = []string{
	"1. 地域限制: 严禁在中华人民共和国和美利坚合众国境内使用",
	"2. 专属管辖权: 任何争议由北京市朝阳区人民法院专属管辖",
	"3. 赔偿标准: 违反协议需承担包括法律费用在内的全部损失",
	"4. 最终解释权: 本协议的最终解释权归作者所有",
	"5. 使用限制: 仅供个人测试使用，禁止商业用途",
}

// ChineseText is the official agreement.
const ChineseText = `法律免责声明与使用限制:
1. 本软件仅供作者个人本地测试使用，不得用于任何商业目的或获利行为。

2. 任何个人或实体使用本软件应自行承担全部风险。作者明确声明不对使用本软件可能导致的
   任何直接、间接、偶然、特殊、惩罚性或后果性损害承担任何责任，无论此类损害是否可预见，
   也无论责任理论如何。

3. 使用者必须遵守所有适用的国家、地区和国际法律法规，包括但不限于计算机安全法、
   网络安全法、数据保护法和隐私法。作者不对任何违反法律法规的使用行为承担责任。

4. 地域限制: 严禁在中华人民共和国和美利坚合众国境内使用本软件，或通过本软件请求、
   访问、处理或存储与这两国有利益关联或受其管辖的任何数据、信息或资产。

5. 任何基于本项目的二次开发、修改、分发或使用导致的任何直接或间接后果，包括但不限于
   法律责任、数据泄露、系统损害或任何其他形式的损失，均与原作者无关，原作者不承担
   任何法律或道德责任。

6. 争议解决: 因本协议引起的或与之相关的任何争议，应首先通过友好协商解决。如协商不成，
   任何一方均可将争议提交至北京市朝阳区人民法院专属管辖。

7. 赔偿责任: 如因使用者违反本协议任何条款而导致任何第三方索赔或诉讼，使用者应为作者
   辩护并赔偿作者因此遭受的全部损失，包括但不限于合理的律师费、诉讼费、赔偿金等。

8. 协议修改: 作者保留随时修改本协议的权利，修改后的协议将在发布后立即生效。使用者
   继续使用本软件即视为接受修改后的协议。

9. 完整协议: 本协议构成使用者与作者之间关于本软件使用的完整协议，并取代先前或同时的
   所有口头或书面协议、提议和陈述。

10. 可分割性: 如本协议的任何条款被认定为无效或不可执行，其余条款仍将保持完全效力。

11. 最终解释权: 本协议的最终解释权归作者所有。中文版本为本协议的官方版本。`

// EnglishText is the reference translation.
const EnglishText = `Legal Disclaimer and Usage Restrictions:
1. This software is for the author's personal local testing only and may not be used for any commercial purposes or profit-making activities.

2. Any individual or entity using this software does so at their own risk. The author expressly disclaims any liability for any direct, indirect, incidental, special, punitive, or consequential damages that may result from the use of this software, whether foreseeable or not, and regardless of the theory of liability.

3. Users must comply with all applicable national, regional, and international laws and regulations, including but not limited to computer security laws, network security laws, data protection laws, and privacy laws. The author is not responsible for any use that violates laws or regulations.

4. Territorial Restrictions: It is strictly prohibited to use this software within the territories of the People's Republic of China and the United States of America, or to request, access, process, or store any data, information, or assets through this software that are associated with or subject to the jurisdiction of these two countries.

5. The original author bears no legal or moral responsibility for any direct or indirect consequences resulting from secondary development, modification, distribution, or use based on this project, including but not limited to legal liability, data leakage, system damage, or any other form of loss.

6. Dispute Resolution: Any dispute arising from or related to this agreement shall first be resolved through friendly negotiation. If negotiation fails, either party may submit the dispute to the exclusive jurisdiction of the People's Court in Chaoyang District, Beijing.

7. Indemnification: If any third-party claims or lawsuits arise due to the user's violation of any terms of this agreement, the user shall defend and indemnify the author for all losses suffered, including but not limited to reasonable attorney fees, litigation costs, and damages.

8. Modification of Agreement: The author reserves the right to modify this agreement at any time, and the modified agreement will take effect immediately upon publication. Continued use of the software by users is deemed acceptance of the modified agreement.

9. Entire Agreement: This agreement constitutes the entire agreement between the user and the author regarding the use of this software and supersedes all prior or contemporaneous oral or written agreements, proposals, and representations.

10. Severability: If any provision of this agreement is deemed invalid or unenforceable, the remaining provisions will remain in full force and effect.

11. Final Right of Interpretation: The final right of interpretation of this agreement belongs to the author. The Chinese version is the official version of this agreement.

Note: This English version is for reference only. In case of any inconsistency between the Chinese and English versions, the Chinese version shall prevail.`
